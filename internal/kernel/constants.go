package kernel

// MRT_* socket option numbers, from <linux/mroute.h>.
const (
	mrtBase    = 200
	mrtInit    = mrtBase
	mrtDone    = mrtBase + 1
	mrtAddVIF  = mrtBase + 2
	mrtDelVIF  = mrtBase + 3
	mrtAddMFC  = mrtBase + 4
	mrtDelMFC  = mrtBase + 5
	mrtVersion = mrtBase + 6
	mrtAssert  = mrtBase + 7
	mrtPIM     = mrtBase + 8
	mrtFlush   = mrtBase + 12
)

// MRT_FLUSH_* mask bits.
const (
	flushVIFs       = 1
	flushVIFsStatic = 2
	flushMFC        = 4
	flushMFCStatic  = 8
)

// VIFF_* flag bits for vifctl.flags.
const (
	viffTunnel     = 0x1
	viffSRCRT      = 0x2
	viffRegister   = 0x4
	viffUseIfindex = 0x8
)

// ioctl request numbers (SIOCPROTOPRIVATE and SIOCPROTOPRIVATE+1 on Linux).
const (
	siocGetVIFCnt = 0x89E0
	siocGetSGCnt  = 0x89E1
)

// IPPROTO_IGMP, not exported by the stdlib syscall package on all platforms.
const ipprotoIGMP = 2

const ipprotoIP = 0
