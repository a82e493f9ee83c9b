package geosource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"

	"delitrack/internal/types"
)

// maxSentences bounds how many lines one Locate call reads before giving up
// on a receiver that only reports "no fix".
const maxSentences = 64

// NMEAProvider reads GGA/RMC sentences from a GPS receiver on a serial port.
type NMEAProvider struct {
	port     string
	baudRate int
	open     func() (io.ReadCloser, error)
}

func NewNMEAProvider(port string, baudRate int) *NMEAProvider {
	p := &NMEAProvider{port: port, baudRate: baudRate}
	p.open = func() (io.ReadCloser, error) {
		return serial.OpenPort(&serial.Config{Name: p.port, Baud: p.baudRate, ReadTimeout: time.Second})
	}
	return p
}

// NewNMEAReaderProvider reads sentences from an arbitrary stream, e.g. a
// recorded log or a gpsd raw socket.
func NewNMEAReaderProvider(open func() (io.ReadCloser, error)) *NMEAProvider {
	return &NMEAProvider{open: open}
}

func (p *NMEAProvider) Locate(ctx context.Context) (Fix, error) {
	rc, err := p.open()
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return Fix{}, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return Fix{}, fmt.Errorf("%w: open %s: %v", ErrPositionUnavailable, p.port, err)
	}

	type result struct {
		fix Fix
		err error
	}
	done := make(chan result, 1)
	go func() {
		fix, err := scanFix(rc)
		done <- result{fix, err}
	}()

	select {
	case r := <-done:
		rc.Close()
		return r.fix, r.err
	case <-ctx.Done():
		// closing unblocks the scanner goroutine
		rc.Close()
		return Fix{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

func scanFix(r io.Reader) (Fix, error) {
	scanner := bufio.NewScanner(r)
	for n := 0; n < maxSentences && scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			continue
		}
		switch s := sentence.(type) {
		case nmea.GGA:
			if s.FixQuality == nmea.Invalid {
				continue
			}
			return newFix(s.Latitude, s.Longitude, s.HDOP)
		case nmea.RMC:
			if s.Validity != nmea.ValidRMC {
				continue
			}
			return newFix(s.Latitude, s.Longitude, 0)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, fs.ErrClosed) {
		return Fix{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	return Fix{}, fmt.Errorf("%w: receiver has no fix", ErrPositionUnavailable)
}

func newFix(lat, lng, hdop float64) (Fix, error) {
	p := types.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return Fix{}, fmt.Errorf("%w: receiver reported %s", ErrPositionUnavailable, p)
	}
	// HDOP is the closest thing NMEA offers to an accuracy radius.
	return Fix{Point: p, Accuracy: hdop, At: time.Now()}, nil
}
