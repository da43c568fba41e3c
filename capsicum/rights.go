package capsicum

import (
	"errors"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	csys "github.com/go-capsicum/go-capsicum/capsicum/syscall"
)

// FileRights is a set of base capability rights for a descriptor.
//
// FileRights values are immutable; methods such as Allow return a
// modified copy. The zero value is the empty set, which permits no
// rights-checked operation at all. FileRights values are comparable
// with ==.
type FileRights struct {
	// Data bits per word, without index markers or version.
	words [csys.RightsWords]uint64
	// Set when an unknown Right was allowed.
	bogus bool
}

// NewFileRights returns the set of the given rights and all of their
// prerequisites.
func NewFileRights(rights ...Right) FileRights {
	return FileRights{}.Allow(rights...)
}

// Allow returns fr with the given rights and their prerequisites
// added. Allowing an unknown Right makes the result invalid, which is
// reported by Validate and Limit.
func (fr FileRights) Allow(rights ...Right) FileRights {
	for _, r := range rights {
		if !r.valid() {
			fr.bogus = true
			continue
		}
		for i, c := range closures[r] {
			fr.words[i] |= c
		}
	}
	return fr
}

// Deny returns fr with the given rights removed.
//
// Denying a right clears its own bit. Denying a composite right, such
// as Pread, clears the bits of the rights it is made of. Afterwards,
// every remaining right whose prerequisites are no longer all present
// is removed as well, so that denying Lookup also removes Mkdirat,
// and denying SeekTell also removes Seek and MmapX.
func (fr FileRights) Deny(rights ...Right) FileRights {
	for _, r := range rights {
		if r.valid() {
			fr.clearOwn(r)
		}
	}
	fr.settle()
	return fr
}

func (fr *FileRights) clearOwn(r Right) {
	if r.isComposite() {
		for _, req := range rightInfos[r].requires {
			fr.clearOwn(req)
		}
		return
	}
	info := rightInfos[r]
	fr.words[info.word] &^= info.bits
}

// settle clears the own bits of rights whose prerequisites are
// missing, until no such right is left.
func (fr *FileRights) settle() {
	for changed := true; changed; {
		changed = false
		for r := Read; r < numRights; r++ {
			info := rightInfos[r]
			if info.bits == 0 || fr.words[info.word]&info.bits == 0 {
				continue
			}
			if !fr.hasClosure(r) {
				fr.words[info.word] &^= info.bits
				changed = true
			}
		}
	}
}

func (fr FileRights) hasClosure(r Right) bool {
	c := closures[r]
	return c[0]&^fr.words[0] == 0 && c[1]&^fr.words[1] == 0
}

// Contains reports whether fr permits r, including all of the rights
// that r requires.
func (fr FileRights) Contains(r Right) bool {
	return r.valid() && fr.hasClosure(r)
}

// ContainsAll reports whether every right in other is also in fr.
func (fr FileRights) ContainsAll(other FileRights) bool {
	return other.words[0]&^fr.words[0] == 0 && other.words[1]&^fr.words[1] == 0
}

// Merge returns the union of fr and other.
func (fr FileRights) Merge(other FileRights) FileRights {
	for i := range fr.words {
		fr.words[i] |= other.words[i]
	}
	fr.bogus = fr.bogus || other.bogus
	return fr
}

// Remove returns fr without the rights in other. Rights left without
// their prerequisites are removed as well, as in Deny.
func (fr FileRights) Remove(other FileRights) FileRights {
	for i := range fr.words {
		fr.words[i] &^= other.words[i]
	}
	fr.settle()
	return fr
}

// IsEmpty reports whether fr contains no rights.
func (fr FileRights) IsEmpty() bool {
	return fr.words == [csys.RightsWords]uint64{} && !fr.bogus
}

// Rights returns the non-composite rights in fr, in kernel order.
func (fr FileRights) Rights() []Right {
	var rs []Right
	for r := Read; r < numRights; r++ {
		info := rightInfos[r]
		if info.bits != 0 && fr.words[info.word]&info.bits == info.bits {
			rs = append(rs, r)
		}
	}
	return rs
}

// Words returns fr in the kernel's cap_rights_t representation,
// with version and index markers.
func (fr FileRights) Words() [csys.RightsWords]uint64 {
	var cr csys.CapRights
	cr.Init()
	for i := range cr.Rights {
		cr.Rights[i] |= fr.words[i]
	}
	return cr.Rights
}

// FileRightsFromWords converts the kernel's cap_rights_t
// representation into a FileRights value. It fails with
// ErrInvalidRights if the words are not a valid rights mask.
func FileRightsFromWords(words [csys.RightsWords]uint64) (FileRights, error) {
	if v := words[0] >> csys.VersionShift; v != csys.RightsVersion {
		return FileRights{}, invalidf("unsupported rights version %d", v)
	}
	var fr FileRights
	for i, w := range words {
		if i > 0 && w>>csys.VersionShift != 0 {
			return FileRights{}, invalidf("word %d has high bits %#x set", i, w>>csys.VersionShift)
		}
		marker := w >> csys.IndexShift & 0x1f
		if marker != 1<<i {
			return FileRights{}, invalidf("word %d has index marker %#x", i, marker)
		}
		fr.words[i] = w & (1<<csys.IndexShift - 1)
	}
	if err := fr.Validate(); err != nil {
		return FileRights{}, err
	}
	return fr, nil
}

var wordMasks = [csys.RightsWords]uint64{csys.RightsMask0, csys.RightsMask1}

// Validate checks fr against the kernel's rules: only defined rights
// may be present, and each right must come with its prerequisites.
func (fr FileRights) Validate() error {
	if fr.bogus {
		return invalidf("unknown right")
	}
	for i, w := range fr.words {
		if extra := w &^ wordMasks[i]; extra != 0 {
			return invalidf("undefined bits %#x in word %d", extra, i)
		}
	}
	for r := Read; r < numRights; r++ {
		info := rightInfos[r]
		if info.bits == 0 || fr.words[info.word]&info.bits == 0 {
			continue
		}
		if !fr.hasClosure(r) {
			return invalidf("%v without its prerequisites", r)
		}
	}
	return nil
}

func (fr FileRights) String() string {
	if fr.bogus {
		return "{invalid}"
	}
	rs := fr.Rights()
	if len(rs) == 0 {
		return "∅"
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, r := range rs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(r.String())
	}
	b.WriteByte('}')
	return b.String()
}

// Limit restricts the descriptor underlying f to the rights in fr.
//
// The rights are validated before the kernel is asked, so an invalid
// set fails with ErrInvalidRights and leaves the descriptor untouched.
// The kernel only narrows rights: limiting a descriptor to rights it
// does not hold fails with an *OSError wrapping ENOTCAPABLE.
func (fr FileRights) Limit(f syscall.Conn) error {
	return withFD(f, fr.LimitFD)
}

// LimitFD is like Limit, but takes a raw descriptor number.
func (fr FileRights) LimitFD(fd int) error {
	if err := fr.Validate(); err != nil {
		return err
	}
	cr := csys.CapRights{Rights: fr.Words()}
	if err := csys.CapRightsLimit(fd, &cr); err != nil {
		if errors.Is(err, unix.EINVAL) {
			err = bug(err)
		}
		return &OSError{Op: "cap_rights_limit", FD: fd, Err: err}
	}
	return nil
}

// FileRightsFromFD returns the rights currently held by fd.
func FileRightsFromFD(fd int) (FileRights, error) {
	var cr csys.CapRights
	if err := csys.CapRightsGet(fd, &cr); err != nil {
		return FileRights{}, &OSError{Op: "cap_rights_get", FD: fd, Err: err}
	}
	return FileRightsFromWords(cr.Rights)
}

// FileRightsFromFile returns the rights currently held by the
// descriptor underlying f.
func FileRightsFromFile(f syscall.Conn) (fr FileRights, err error) {
	err = withFD(f, func(fd int) error {
		fr, err = FileRightsFromFD(fd)
		return err
	})
	return fr, err
}
