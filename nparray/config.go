package nparray

import (
	"github.com/outofforest/pmem/dtype"
)

// Config is the configuration of the new array.
type Config struct {
	// ElementType is mandatory.
	ElementType dtype.DType

	// Shape is optional. If set, it must contain exactly one positive value.
	Shape []int
}

// ParseConfig builds the configuration from loosely typed keyword arguments.
// Recognized keys are "dtype" (dtype.DType) and "shape" (integer or sequence of integers).
func ParseConfig(kw map[string]any) (Config, error) {
	for key := range kw {
		if key != "dtype" && key != "shape" {
			return Config{}, configError(nil, "unexpected parameter %q", key)
		}
	}

	rawType, ok := kw["dtype"]
	if !ok {
		return Config{}, configError(nil, "missing 'dtype' parameter")
	}
	dt, ok := rawType.(dtype.DType)
	if !ok {
		return Config{}, configError(ErrType, "'dtype' argument must be an element type descriptor, got %T", rawType)
	}

	config := Config{ElementType: dt}
	if rawShape, ok := kw["shape"]; ok {
		shape, err := parseShape(rawShape)
		if err != nil {
			return Config{}, err
		}
		config.Shape = shape
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func parseShape(raw any) ([]int, error) {
	switch shape := raw.(type) {
	case int:
		return []int{shape}, nil
	case int32:
		return []int{int(shape)}, nil
	case int64:
		return []int{int(shape)}, nil
	case []int:
		return append([]int{}, shape...), nil
	case []int64:
		result := make([]int, 0, len(shape))
		for _, v := range shape {
			result = append(result, int(v))
		}
		return result, nil
	case []any:
		result := make([]int, 0, len(shape))
		for _, v := range shape {
			i, ok := v.(int)
			if !ok {
				return nil, configError(ErrValue, "'shape' should contain a single, strictly positive value")
			}
			result = append(result, i)
		}
		return result, nil
	default:
		return nil, configError(ErrType, "'shape' is an unsupported data type: %T", raw)
	}
}

func (c Config) validate() error {
	if c.ElementType.IsZero() {
		return configError(nil, "missing element type")
	}
	if !c.ElementType.IsBuiltin() {
		return configError(ErrType, "element type must represent a builtin type")
	}
	if c.Shape == nil {
		return nil
	}
	if len(c.Shape) != 1 || c.Shape[0] <= 0 {
		return configError(ErrValue, "'shape' should contain a single, strictly positive value, got %v", c.Shape)
	}
	return nil
}

// count returns the number of elements of the array created with n initial values.
func (c Config) count(n int) (int, error) {
	if c.Shape == nil {
		return n, nil
	}
	if n > c.Shape[0] {
		return 0, configError(ErrValue, "%d initial values do not fit into shape %v", n, c.Shape)
	}
	return c.Shape[0], nil
}
