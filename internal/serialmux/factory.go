package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenSerialPort opens a real serial device at path and applies the read
// timeout from opts. It satisfies SerialPortOpener.
func OpenSerialPort(path string, opts PortOptions) (SerialPorter, error) {
	opts, err := opts.Normalise()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}

	return port, nil
}

// ListPorts returns the serial device paths currently present on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
