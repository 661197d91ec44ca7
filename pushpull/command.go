package pushpull

import (
	"reflect"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"golang.org/x/exp/maps"

	"go.viam.com/pushpull/logging"
)

// flagAliases maps short flag names to long ones.
var flagAliases = map[string]string{
	"n":  "name",
	"d":  "distance",
	"sf": "startFrame",
	"sp": "startPosition",
	"sk": "skip",
}

type commandFlags struct {
	Name          string     `mapstructure:"name"`
	Distance      *float64   `mapstructure:"distance"`
	StartFrame    *float64   `mapstructure:"startFrame"`
	StartPosition *r3.Vector `mapstructure:"startPosition"`
	Skip          []string   `mapstructure:"skip"`
	Push          *bool      `mapstructure:"push"`
	Pull          *bool      `mapstructure:"pull"`
}

// Command is the flag-driven entry point to Build. Flags may use long or short names:
// name|n, distance|d, startFrame|sf, startPosition|sp (three numbers, as a list or "x,y,z"), skip|sk (one axis, a list of
// axes, or a comma separated string), push and pull. It returns the created node's name.
func Command(host Host, refs []string, flags map[string]interface{}, logger logging.Logger) (string, *Construction, error) {
	opts, err := ParseFlags(flags)
	if err != nil {
		return "", nil, err
	}
	c, err := Build(host, refs, opts, logger)
	if err != nil {
		return "", nil, err
	}
	return c.Node, c, nil
}

// ParseFlags decodes a command flag map into Options.
func ParseFlags(flags map[string]interface{}) (Options, error) {
	long := make(map[string]interface{}, len(flags))
	keys := maps.Keys(flags)
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if alias, ok := flagAliases[k]; ok {
			name = alias
		}
		if _, dup := long[name]; dup {
			return Options{}, newValidationError("flags", errors.Errorf("flag %q given more than once", name))
		}
		long[name] = flags[k]
	}

	var parsed commandFlags
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
			vectorHook,
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &parsed,
	})
	if err != nil {
		return Options{}, err
	}
	if err := decoder.Decode(long); err != nil {
		return Options{}, newValidationError("flags", err)
	}
	return Options{
		Name:          parsed.Name,
		Distance:      parsed.Distance,
		StartFrame:    parsed.StartFrame,
		StartPosition: parsed.StartPosition,
		SkipAxes:      parsed.Skip,
		Push:          parsed.Push,
		Pull:          parsed.Pull,
	}, nil
}

var vectorType = reflect.TypeOf(r3.Vector{})

// vectorHook decodes a list of three numbers, or a comma separated string of them, into an
// r3.Vector.
func vectorHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != vectorType {
		return data, nil
	}
	var parts []interface{}
	switch from.Kind() {
	case reflect.String:
		for _, p := range strings.Split(data.(string), ",") {
			parts = append(parts, strings.TrimSpace(p))
		}
	case reflect.Slice, reflect.Array:
		v := reflect.ValueOf(data)
		for i := 0; i < v.Len(); i++ {
			parts = append(parts, v.Index(i).Interface())
		}
	default:
		return data, nil
	}
	if len(parts) != 3 {
		return nil, errors.Errorf("expected 3 components for a position, got %d", len(parts))
	}
	var xyz [3]float64
	for i, p := range parts {
		f, err := cast.ToFloat64E(p)
		if err != nil {
			return nil, errors.Wrapf(err, "position component %d", i)
		}
		xyz[i] = f
	}
	return r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
