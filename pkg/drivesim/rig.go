package drivesim

import (
	"errors"
	"fmt"

	"github.com/gwillem/amber/pkg/actuator"
)

// Rig is a set of simulated drives forming one group.
type Rig struct {
	Drives []*Drive
}

// NewRig starts n drives. identities, when given, sets each drive's identity
// flag in order; drives past its end use 0.
func NewRig(n int, identities []int, opts ...Option) (*Rig, error) {
	r := &Rig{}
	for i := 0; i < n; i++ {
		driveOpts := append([]Option(nil), opts...)
		if i < len(identities) {
			driveOpts = append(driveOpts, WithIdentity(identities[i]))
		}
		driveOpts = append(driveOpts, WithSerial(fmt.Sprintf("SIM-%02d", i)))
		d, err := Start(driveOpts...)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("start drive %d: %w", i, err)
		}
		r.Drives = append(r.Drives, d)
	}
	return r, nil
}

// Attributes returns one attribute per drive, indexed like Drives.
func (r *Rig) Attributes() []actuator.Attribute {
	attrs := make([]actuator.Attribute, len(r.Drives))
	for i, d := range r.Drives {
		attrs[i] = d.Attribute()
		attrs[i].ID = i
	}
	return attrs
}

// Close stops every drive.
func (r *Rig) Close() error {
	var errs []error
	for _, d := range r.Drives {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
