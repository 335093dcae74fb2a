/*
netdef.go Network definition files. A definition is a YAML document listing the
components of one electrical network, their connections and their parameters.
*/

package netdef

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrLoad is wrapped by every error that prevents a definition from loading.
var ErrLoad = errors.New("network definition load failed")

var validate = validator.New()

// Definition is the root of a network definition document.
type Definition struct {
	Name             string      `yaml:"name" validate:"required"`
	AmbientTemp      float64     `yaml:"ambient_temp" validate:"gte=0"`
	ShortCircuitAmps float64     `yaml:"short_circuit_amps" validate:"gte=0"`
	Components       []Component `yaml:"components" validate:"required,min=1,dive"`
}

// Component is one entry of the components list. Only the parameter block
// matching Type is read.
type Component struct {
	Name  string   `yaml:"name" validate:"required"`
	Type  string   `yaml:"type" validate:"required"`
	AC    bool     `yaml:"ac"`
	Conns []string `yaml:"conns" validate:"dive,required"`
	Pos   *Pos     `yaml:"pos"`

	Gen   *Gen   `yaml:"gen"`
	Batt  *Batt  `yaml:"batt"`
	Conv  *Conv  `yaml:"conv"`
	Load  *Load  `yaml:"load"`
	CB    *CB    `yaml:"cb"`
	Diode *Diode `yaml:"diode"`
	Tie   *Tie   `yaml:"tie"`
}

type Pos struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type Gen struct {
	Volts  float64 `yaml:"volts" validate:"gt=0"`
	Freq   float64 `yaml:"freq" validate:"gte=0"`
	MinRPM float64 `yaml:"min_rpm" validate:"gt=0"`
	MaxRPM float64 `yaml:"max_rpm" validate:"gtefield=MinRPM"`
	ExcRPM float64 `yaml:"exc_rpm" validate:"gte=0,ltefield=MinRPM"`
	Eff    float64 `yaml:"eff" validate:"gte=0,lte=1"`
	IntR   float64 `yaml:"int_r" validate:"gte=0"`
}

type Batt struct {
	Volts       float64  `yaml:"volts" validate:"gt=0"`
	Capacity    float64  `yaml:"capacity" validate:"gt=0"`
	IntR        float64  `yaml:"int_r" validate:"gte=0"`
	MaxChgAmps  float64  `yaml:"max_chg_amps" validate:"gte=0"`
	TrickleAmps float64  `yaml:"trickle_amps" validate:"gte=0"`
	CurveK      float64  `yaml:"curve_k" validate:"gte=0"`
	ColdCoeff   float64  `yaml:"cold_coeff" validate:"gte=0"`
	RefTemp     float64  `yaml:"ref_temp" validate:"gte=0"`
	ThermalTau  float64  `yaml:"thermal_tau" validate:"gte=0"`
	ThermalR    float64  `yaml:"thermal_r" validate:"gte=0"`
	InitCharge  *float64 `yaml:"init_charge" validate:"omitempty,gte=0,lte=1"`
	InitTemp    float64  `yaml:"init_temp" validate:"gte=0"`
}

// Conv parameterizes TRUs and inverters.
type Conv struct {
	InVolts    float64 `yaml:"in_volts" validate:"gt=0"`
	OutVolts   float64 `yaml:"out_volts" validate:"gt=0"`
	OutFreq    float64 `yaml:"out_freq" validate:"gte=0"`
	MinInVolts float64 `yaml:"min_in_volts" validate:"gte=0"`
	Eff        float64 `yaml:"eff" validate:"gt=0,lte=1"`
}

type Load struct {
	Stab     bool    `yaml:"stab"`
	Demand   float64 `yaml:"demand" validate:"gte=0"`
	MinVolts float64 `yaml:"min_volts" validate:"gte=0"`
	IncapC   float64 `yaml:"incap_c" validate:"gte=0"`
	IncapR   float64 `yaml:"incap_r" validate:"gte=0"`
}

type CB struct {
	MaxAmps   float64 `yaml:"max_amps" validate:"gt=0"`
	TripLimit float64 `yaml:"trip_limit" validate:"gte=0"`
	ResetTemp float64 `yaml:"reset_temp" validate:"gte=0"`
	CoolTau   float64 `yaml:"cool_tau" validate:"gte=0"`
	Fuse      bool    `yaml:"fuse"`
	Open      bool    `yaml:"open"`
}

type Diode struct {
	Drop float64 `yaml:"drop" validate:"gte=0"`
}

type Tie struct {
	Joined JoinSet `yaml:"joined"`
}

// JoinSet is the initial join state of a tie: the scalar "all" or "none", or
// a list of bus names.
type JoinSet struct {
	All   bool
	Names []string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (j *JoinSet) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		switch value.Value {
		case "all":
			*j = JoinSet{All: true}
		case "none", "":
			*j = JoinSet{}
		default:
			return fmt.Errorf("line %d: tie joined must be all, none or a list, got %q", value.Line, value.Value)
		}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*j = JoinSet{Names: names}
		return nil
	}
	return fmt.Errorf("line %d: tie joined must be all, none or a list", value.Line)
}

// MarshalYAML implements yaml.Marshaler.
func (j JoinSet) MarshalYAML() (interface{}, error) {
	switch {
	case j.All:
		return "all", nil
	case len(j.Names) == 0:
		return "none", nil
	}
	return j.Names, nil
}

// Parse decodes and validates a definition. Unknown fields are rejected.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	def := &Definition{}
	if err := dec.Decode(def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	def.applyDefaults()
	if err := def.check(); err != nil {
		return nil, err
	}
	return def, nil
}

// ReadFile parses the definition stored at path.
func ReadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return Parse(data)
}

// Marshal encodes the definition back to YAML.
func (d *Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

func (d *Definition) check() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrLoad, formatValidationError(err))
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	errs := make([]error, 0, len(validationErrs))
	for _, e := range validationErrs {
		field := e.Namespace()
		switch e.Tag() {
		case "required":
			errs = append(errs, fmt.Errorf("%s: field is required", field))
		case "min":
			errs = append(errs, fmt.Errorf("%s: must have at least %s entries", field, e.Param()))
		case "gt", "gte", "lt", "lte":
			errs = append(errs, fmt.Errorf("%s: must be %s %s, got %v", field, e.Tag(), e.Param(), e.Value()))
		default:
			errs = append(errs, fmt.Errorf("%s: validation failed (%s)", field, e.Tag()))
		}
	}
	return errors.Join(errs...)
}
