// Package capsicum restricts processes and descriptors with FreeBSD's
// Capsicum capability facility.
//
// A descriptor's base rights are described by FileRights. Descriptors
// that hold the Ioctl or Fcntl right can additionally be narrowed to
// specific commands with IoctlRights and FcntlRights. Rights only ever
// shrink: the kernel rejects any attempt to grant a descriptor rights
// it does not already hold.
//
// Enter puts the whole process into capability mode, where global
// namespaces are no longer reachable and the process can only act
// through the descriptors it holds. Work that needs global namespaces
// after that point can be delegated to a broker, see package
// github.com/go-capsicum/go-capsicum/casper.
//
// On systems other than FreeBSD, every operation that reaches the
// kernel fails with ENOSYS.
package capsicum
