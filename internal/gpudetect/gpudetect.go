// Package gpudetect answers "is there a GPU to target" by watching Linux
// kernel uevents for DRM/accel-class device hotplug, the same mechanism
// (and dependency) the teacher's cmd/minitrd uses to react to block-device
// hotplug during early boot — there it waits for a root device to appear;
// here it waits for evidence a GPU pipeline is worth choosing over the CPU one.
package gpudetect

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/s-urbaniak/uevent"
)

// probeTimeout bounds how long Probe waits for a uevent before falling
// back to "no GPU" — spec.md's pipeline selection must not block a
// process's startup indefinitely on a machine with no uevent traffic.
const probeTimeout = 200 * time.Millisecond

// Probe opens a NETLINK_KOBJECT_UEVENT socket and watches for one
// DRM/accel-class "add" event (or until ctx/probeTimeout expires),
// reporting whether a GPU appears present. A read error (e.g. insufficient
// privilege to open the netlink socket) is treated the same as a timeout:
// default to the CPU pipeline rather than fail engine construction over a
// best-effort detection step.
func Probe(ctx context.Context) bool {
	r, err := uevent.NewReader()
	if err != nil {
		log.Printf("gpudetect: uevent.NewReader: %v (defaulting to no GPU)", err)
		return false
	}
	defer r.Close()
	dec := uevent.NewDecoder(r)

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	found := make(chan bool, 1)
	go func() {
		for {
			ev, err := dec.Decode()
			if err != nil {
				return
			}
			if isGPUSubsystem(ev.Subsystem) && ev.Action == "add" {
				found <- true
				return
			}
		}
	}()

	select {
	case <-found:
		return true
	case <-ctx.Done():
		return false
	}
}

func isGPUSubsystem(subsystem string) bool {
	return strings.EqualFold(subsystem, "drm") || strings.EqualFold(subsystem, "accel")
}
