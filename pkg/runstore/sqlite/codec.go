package sqlite

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"mercator-hq/relay/pkg/ports"
)

// encMode uses Core Deterministic Encoding so equal runs produce equal
// payload bytes.
var encMode cbor.EncMode

// decMode decodes untyped values (run outputs) into map[string]any so
// they stay interchangeable with encoding/json results.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("runstore: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("runstore: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeRun(run *ports.Run) ([]byte, error) {
	return encMode.Marshal(run)
}

func decodeRun(data []byte) (*ports.Run, error) {
	var run ports.Run
	if err := decMode.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}
