package ioshim

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
)

// PcapReplay reads pre-recorded frames from a pcap file and serves them one
// at a time through Receive, tagging every frame with a single configured
// interface name. It exists for root-free, deterministic runs: `cmd/router
// --pcap-in` drives the same pipeline a live RawSocket would.
type PcapReplay struct {
	iface  string
	source *pcapgo.Reader
	file   io.Closer

	mu   sync.Mutex
	done bool
}

// OpenPcapReplay opens path for reading and attributes every frame it yields
// to iface.
func OpenPcapReplay(path, iface string) (*PcapReplay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ioshim: open pcap %s: %w", path, err)
	}

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ioshim: read pcap header %s: %w", path, err)
	}

	return &PcapReplay{iface: iface, source: reader, file: f}, nil
}

// Receive returns the next recorded frame, or io.EOF once the file is
// exhausted.
func (p *PcapReplay) Receive() (string, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return "", nil, io.EOF
	}

	data, _, err := p.source.ReadPacketData()
	if err != nil {
		p.done = true
		if err == io.EOF {
			return "", nil, io.EOF
		}
		return "", nil, fmt.Errorf("ioshim: read pcap packet: %w", err)
	}

	frame := make([]byte, len(data))
	copy(frame, data)
	return p.iface, frame, nil
}

// Send is a no-op sink: replay is a read-only source. Frames the pipeline
// emits while replaying should be routed through a PcapRecorder instead.
func (p *PcapReplay) Send(iface string, frame []byte) error {
	return nil
}

// Close releases the underlying file.
func (p *PcapReplay) Close() error {
	return p.file.Close()
}

// PcapRecorder writes every frame handed to Send into a pcap file, so a
// router run (live or replayed) can be captured for later inspection or
// use as a new PcapReplay fixture.
type PcapRecorder struct {
	file   io.Closer
	writer *pcapgo.Writer

	mu sync.Mutex
}

// NewPcapRecorder creates (or truncates) path and writes a pcap file header
// for Ethernet-linktype captures.
func NewPcapRecorder(path string) (*PcapRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ioshim: create pcap %s: %w", path, err)
	}

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(uint32(65535), layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("ioshim: write pcap header: %w", err)
	}

	return &PcapRecorder{file: f, writer: w}, nil
}

// Send appends frame to the capture file with the current time as its
// pcap timestamp. iface is not recorded; pcap files carry no interface tag.
func (r *PcapRecorder) Send(iface string, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := r.writer.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("ioshim: write pcap packet: %w", err)
	}
	return nil
}

// Receive is unsupported: a recorder is a write-only sink.
func (r *PcapRecorder) Receive() (string, []byte, error) {
	return "", nil, fmt.Errorf("ioshim: PcapRecorder does not support Receive")
}

// Close flushes and closes the capture file.
func (r *PcapRecorder) Close() error {
	return r.file.Close()
}
