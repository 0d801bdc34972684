// Package codec centraliza la codificación CBOR determinística que usan
// el ledger de auditoría (para hashear) y el store LevelDB (para persistir).
// Mismo dato lógico => mismos bytes.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	opts := cbor.CoreDetEncOptions()
	// time.Time como RFC3339 con nanos: estable entre zonas horarias si
	// el llamador normaliza a UTC (lo hace el dominio).
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic("codec: cbor encoder init: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: cbor decoder init: " + err.Error())
	}
}

func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
