// Package wire moves framed messages and descriptors over a Unix
// stream socket.
package wire

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/go-capsicum/go-capsicum/casper/message"
)

// MaxFiles is the largest number of descriptors accepted with a
// single message.
const MaxFiles = 16

// ErrTruncated is returned when the kernel dropped descriptors
// because the control buffer was too small.
var ErrTruncated = errors.New("control message truncated")

// Conn is a message connection. It is not safe for concurrent use.
type Conn struct {
	uc      *net.UnixConn
	maxSize int
}

// NewConn wraps f, which must be a connected Unix stream socket.
// The returned Conn uses its own duplicate of the descriptor; the
// caller remains responsible for closing f.
func NewConn(f *os.File, maxSize int) (*Conn, error) {
	nc, err := net.FileConn(f)
	if err != nil {
		return nil, err
	}
	uc, ok := nc.(*net.UnixConn)
	if !ok {
		nc.Close()
		return nil, fmt.Errorf("descriptor %d is a %T, not a Unix socket", f.Fd(), nc)
	}
	return &Conn{uc: uc, maxSize: maxSize}, nil
}

// Socketpair returns two connected Unix stream sockets.
func Socketpair() (*os.File, *os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, os.NewSyscallError("socketpair", err)
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	return os.NewFile(uintptr(fds[0]), "casper"), os.NewFile(uintptr(fds[1]), "casper"), nil
}

// Send writes m as a single frame, passing files along with it.
// The files stay open in the sender.
func (c *Conn) Send(m *message.Message, files ...*os.File) error {
	frame, err := message.Frame(m)
	if err != nil {
		return err
	}
	if len(frame)-message.HeaderSize > c.maxSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds limit of %d", message.ErrEncoding, len(frame)-message.HeaderSize, c.maxSize)
	}
	if len(files) > MaxFiles {
		return fmt.Errorf("%d descriptors exceed limit of %d", len(files), MaxFiles)
	}

	var oob []byte
	if len(files) > 0 {
		fds := make([]int, len(files))
		for i, f := range files {
			fds[i] = int(f.Fd())
		}
		oob = unix.UnixRights(fds...)
	}
	n, _, err := c.uc.WriteMsgUnix(frame, oob, nil)
	if err != nil {
		return err
	}
	if n < len(frame) {
		_, err = c.uc.Write(frame[n:])
	}
	return err
}

// Receive reads the next frame along with any descriptors sent with it.
func (c *Conn) Receive() (*message.Message, []*os.File, error) {
	var header [message.HeaderSize]byte
	oob := make([]byte, unix.CmsgSpace(MaxFiles*4))
	n, oobn, flags, _, err := c.uc.ReadMsgUnix(header[:], oob)
	if err != nil {
		return nil, nil, err
	}
	if n == 0 {
		return nil, nil, io.EOF
	}
	files, err := parseRights(oob[:oobn])
	if err == nil && flags&unix.MSG_CTRUNC != 0 {
		err = ErrTruncated
	}
	if err != nil {
		CloseFiles(files)
		return nil, nil, err
	}

	if _, err := io.ReadFull(c.uc, header[n:]); err != nil {
		CloseFiles(files)
		return nil, nil, unexpectedEOF(err)
	}
	size, err := message.FrameSize(header, c.maxSize)
	if err != nil {
		CloseFiles(files)
		return nil, nil, err
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(c.uc, body); err != nil {
		CloseFiles(files)
		return nil, nil, unexpectedEOF(err)
	}
	m, err := message.Decode(body)
	if err != nil {
		CloseFiles(files)
		return nil, nil, err
	}
	return m, files, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func parseRights(oob []byte) ([]*os.File, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, os.NewSyscallError("recvmsg", err)
	}
	var files []*os.File
	for i := range scms {
		fds, err := unix.ParseUnixRights(&scms[i])
		if err != nil {
			continue
		}
		for _, fd := range fds {
			unix.CloseOnExec(fd)
			files = append(files, os.NewFile(uintptr(fd), "casper"))
		}
	}
	return files, nil
}

// CloseFiles closes all of the given files.
func CloseFiles(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.uc.Close()
}
