package bus

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/ehrlich-b/raidline/internal/codec"
	"github.com/ehrlich-b/raidline/internal/logging"
	"github.com/ehrlich-b/raidline/internal/types"
)

// Server speaks the wire protocol Client dials into, backed by a Fake
// array. It exists so tests (and the raidlinesim demo) can exercise the
// real TCP framing end to end without a real RAID array; the teacher's
// analogue is running its in-memory backend behind a real ublk device.
type Server struct {
	ln     net.Listener
	fake   *Fake
	logger *logging.Logger
	done   chan struct{}
	bufs   *bufferPool
}

// NewServer starts listening on addr (empty string picks a free port)
// and serves opcodes against fake until Close is called.
func NewServer(addr string, fake *Fake) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln:     ln,
		fake:   fake,
		logger: logging.Default(),
		done:   make(chan struct{}),
		bufs:   newBufferPool(fake.blockSize),
	}
	go s.serve()
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) Close() error {
	close(s.done)
	return s.ln.Close()
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Warnf("bus server: accept: %v", err)
				return
			}
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			return
		}
		req := codec.Decode(binary.BigEndian.Uint64(hdr[:]))

		var payload []byte
		if req.Type == codec.OpWrite {
			payload = s.bufs.get()
			if _, err := io.ReadFull(conn, payload); err != nil {
				s.bufs.put(payload)
				return
			}
		}

		resp, respPayload := s.dispatch(req, payload)
		if req.Type == codec.OpWrite {
			// fake.Write (below, via dispatch) copies payload into its own
			// backing array, so the pooled buffer is free to reuse once
			// dispatch returns.
			s.bufs.put(payload)
		}

		var out [8]byte
		binary.BigEndian.PutUint64(out[:], codec.EncodeStatus(resp))
		if _, err := conn.Write(out[:]); err != nil {
			return
		}
		if respPayload != nil {
			if _, err := conn.Write(respPayload); err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatch(req codec.Response, payload []byte) (codec.Response, []byte) {
	resp := codec.Response{Type: req.Type, NumBlocks: req.NumBlocks, DiskNumber: req.DiskNumber, BlockID: req.BlockID}

	fail := func() (codec.Response, []byte) {
		resp.Status = true
		return resp, nil
	}

	switch req.Type {
	case codec.OpInit:
		if err := s.fake.Init(); err != nil {
			return fail()
		}
		return resp, nil

	case codec.OpFormat:
		if err := s.fake.Format(req.DiskNumber); err != nil {
			return fail()
		}
		return resp, nil

	case codec.OpRead:
		buf, err := s.fake.Read(types.PhysAddr{Disk: req.DiskNumber, Block: req.BlockID})
		if err != nil {
			return fail()
		}
		return resp, buf

	case codec.OpWrite:
		if err := s.fake.Write(types.PhysAddr{Disk: req.DiskNumber, Block: req.BlockID}, payload); err != nil {
			return fail()
		}
		return resp, nil

	case codec.OpStatus:
		failed, err := s.fake.Status(req.DiskNumber)
		if err != nil {
			return fail()
		}
		if failed {
			resp.BlockID = 2
		} else {
			resp.BlockID = 0
		}
		return resp, nil

	case codec.OpClose:
		if err := s.fake.Close(); err != nil {
			return fail()
		}
		return resp, nil

	default:
		return fail()
	}
}
