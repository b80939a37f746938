package instrument

import (
	"context"

	"github.com/hegelab/hegel/pkg/hegel/visa"
)

func ptr(v float64) *float64 { return &v }

// Builtin drivers. "source" and "meter" speak the command set of the
// matching SIM models, which bench supplies and DMMs in SCPI socket
// mode also accept with the right command strings configured. "scpi"
// connects and identifies without declaring devices, for raw access.
func init() {
	RegisterDriver("source", func(ctx context.Context, name string, sess *visa.Session) (Instrument, error) {
		return NewSCPI(ctx, name, sess, []DeviceCommand{
			{
				Name:   "level",
				Get:    "SOUR:LEV?",
				Set:    "SOUR:LEV %s",
				Unit:   "V",
				Min:    ptr(-10),
				Max:    ptr(10),
				Setget: true,
			},
			{
				Name: "settle",
				Get:  "SOUR:SETTLE?",
				Set:  "SOUR:SETTLE %s",
				Unit: "s",
				Min:  ptr(0),
			},
		})
	})

	RegisterDriver("meter", func(ctx context.Context, name string, sess *visa.Session) (Instrument, error) {
		return NewSCPI(ctx, name, sess, []DeviceCommand{
			{
				Name: "readval",
				Get:  "READ?",
				Unit: "V",
			},
			{
				Name:   "range",
				Get:    "SENS:RANG?",
				Set:    "SENS:RANG %s",
				Unit:   "V",
				Min:    ptr(0.001),
				Max:    ptr(1000),
				Setget: true,
			},
		})
	})

	RegisterDriver("scpi", func(ctx context.Context, name string, sess *visa.Session) (Instrument, error) {
		return NewSCPI(ctx, name, sess, nil)
	})
}
