package main

import (
	"fmt"
	"io"

	"go.bug.st/serial/enumerator"
)

// listPorts prints one serial port per line, with USB identification
// where the enumerator found it.
func listPorts(w io.Writer, ports []*enumerator.PortDetails) {
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found")
		return
	}
	for _, p := range ports {
		if p == nil {
			continue
		}
		if !p.IsUSB {
			fmt.Fprintln(w, p.Name)
			continue
		}
		fmt.Fprintf(w, "%s\tUSB %s:%s", p.Name, p.VID, p.PID)
		if p.Product != "" {
			fmt.Fprintf(w, "\t%s", p.Product)
		}
		if p.SerialNumber != "" {
			fmt.Fprintf(w, "\tserial %s", p.SerialNumber)
		}
		fmt.Fprintln(w)
	}
}
