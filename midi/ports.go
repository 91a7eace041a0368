package midi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

var (
	ErrScanTimeout  = errors.New("MIDI port scan timed out")
	ErrPortNotFound = errors.New("MIDI port not found")
)

// ScanTimeout bounds a port listing. CoreMIDI can hang.
const ScanTimeout = 3 * time.Second

// Ports lists the names of the system's MIDI ports.
type Ports struct {
	In  []string
	Out []string
}

type portsResult struct {
	in  []drivers.In
	out []drivers.Out
}

func scan(timeout time.Duration) (portsResult, error) {
	ch := make(chan portsResult, 1)
	go func() {
		ch <- portsResult{in: gomidi.GetInPorts(), out: gomidi.GetOutPorts()}
	}()

	select {
	case res := <-ch:
		return res, nil
	case <-time.After(timeout):
		// user needs to run: sudo killall coreaudiod midiserver
		return portsResult{}, fault.Wrap(ErrScanTimeout, fmsg.WithDesc("scan ports", "MIDI system is not responding"))
	}
}

// ListPorts returns the current input and output port names.
func ListPorts() (Ports, error) {
	res, err := scan(ScanTimeout)
	if err != nil {
		return Ports{}, err
	}
	var p Ports
	for _, in := range res.in {
		p.In = append(p.In, in.String())
	}
	for _, out := range res.out {
		p.Out = append(p.Out, out.String())
	}
	return p, nil
}

// matchPort picks the port equal to name, or else the first whose name
// contains it (case-insensitive). An empty name picks the first port.
func matchPort[P interface{ String() string }](ports []P, name string) (P, bool) {
	var zero P
	if len(ports) == 0 {
		return zero, false
	}
	if name == "" {
		return ports[0], true
	}
	for _, p := range ports {
		if p.String() == name {
			return p, true
		}
	}
	lower := strings.ToLower(name)
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.String()), lower) {
			return p, true
		}
	}
	return zero, false
}

// OpenOutput opens the named output port and wraps it in an Output.
func OpenOutput(name string, voices *VoiceTable, opts ...OutputOption) (*Output, error) {
	res, err := scan(ScanTimeout)
	if err != nil {
		return nil, err
	}
	port, ok := matchPort(res.out, name)
	if !ok {
		return nil, fault.Wrap(ErrPortNotFound, fmsg.WithDesc("open output "+name, fmt.Sprintf("No MIDI output matching %q", name)))
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("open output "+port.String()))
	}
	o := NewOutput(send, voices, opts...)
	o.closer = port.Close
	return o, nil
}
