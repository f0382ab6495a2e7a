package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnknownChannel is returned for a channel the manifest does not declare.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrUnknownMethod is returned for a method the channel does not declare.
	ErrUnknownMethod = errors.New("unknown method")
)

// Manifest describes the channels a server exposes, their methods and the
// shapes of their arguments.
type Manifest struct {
	Version     string                      `json:"version" yaml:"version"`
	Name        string                      `json:"name" yaml:"name"`
	Description string                      `json:"description" yaml:"description"`
	Channels    map[string]*ChannelManifest `json:"channels" yaml:"channels"`
	Models      map[string]*ModelDefinition `json:"models,omitempty" yaml:"models,omitempty"`
}

// ChannelManifest describes one method channel.
type ChannelManifest struct {
	Name        string                     `json:"name" yaml:"name"`
	Description string                     `json:"description" yaml:"description"`
	Methods     map[string]*MethodManifest `json:"methods" yaml:"methods"`
}

// MethodManifest describes one method of a channel.
type MethodManifest struct {
	Name        string                       `json:"name" yaml:"name"`
	Description string                       `json:"description" yaml:"description"`
	Args        map[string]*ArgumentManifest `json:"args,omitempty" yaml:"args,omitempty"`
	// ArgsModelRef validates the whole argument map against a model instead
	// of Args.
	ArgsModelRef string            `json:"argsModelRef,omitempty" yaml:"argsModelRef,omitempty"`
	Response     *ResponseManifest `json:"response,omitempty" yaml:"response,omitempty"`
	ErrorCodes   []string          `json:"errorCodes,omitempty" yaml:"errorCodes,omitempty"`
}

// ArgumentManifest describes an argument or a model property.
type ArgumentManifest struct {
	Name        string                       `json:"name" yaml:"name"`
	Type        string                       `json:"type" yaml:"type"`
	Description string                       `json:"description" yaml:"description"`
	Required    bool                         `json:"required" yaml:"required"`
	Default     interface{}                  `json:"default,omitempty" yaml:"default,omitempty"`
	Pattern     string                       `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	MinLength   *int                         `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength   *int                         `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Minimum     *float64                     `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum     *float64                     `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	Enum        []string                     `json:"enum,omitempty" yaml:"enum,omitempty"`
	ModelRef    string                       `json:"modelRef,omitempty" yaml:"modelRef,omitempty"`
	Items       *ArgumentManifest            `json:"items,omitempty" yaml:"items,omitempty"`
	Properties  map[string]*ArgumentManifest `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// ResponseManifest describes a method result.
type ResponseManifest struct {
	Type        string            `json:"type" yaml:"type"`
	Description string            `json:"description" yaml:"description"`
	ModelRef    string            `json:"modelRef,omitempty" yaml:"modelRef,omitempty"`
	Items       *ArgumentManifest `json:"items,omitempty" yaml:"items,omitempty"`
}

// ModelDefinition is a reusable object shape.
type ModelDefinition struct {
	Name        string                       `json:"name" yaml:"name"`
	Type        string                       `json:"type" yaml:"type"`
	Description string                       `json:"description" yaml:"description"`
	Properties  map[string]*ArgumentManifest `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required    []string                     `json:"required,omitempty" yaml:"required,omitempty"`
}

// ValidationError reports an argument that does not match the manifest.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", ve.Field, ve.Message, ve.Value)
}

var validTypes = []string{"string", "number", "integer", "boolean", "array", "object", "any"}

// HasMethod reports whether the channel declares the method.
func (manifest *Manifest) HasMethod(channelID, method string) bool {
	_, err := manifest.GetMethod(channelID, method)
	return err == nil
}

// GetMethod returns the manifest of a method.
func (manifest *Manifest) GetMethod(channelID, method string) (*MethodManifest, error) {
	channel, ok := manifest.Channels[channelID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}
	m, ok := channel.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s on channel %s", ErrUnknownMethod, method, channelID)
	}
	return m, nil
}

// MethodNames returns the sorted method names of a channel.
func (manifest *Manifest) MethodNames(channelID string) []string {
	channel, ok := manifest.Channels[channelID]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(channel.Methods))
	for name := range channel.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateArgs looks up a method and validates args against it.
func (manifest *Manifest) ValidateArgs(channelID, method string, args map[string]interface{}) error {
	m, err := manifest.GetMethod(channelID, method)
	if err != nil {
		return err
	}
	return manifest.ValidateMethodArgs(m, args)
}

// ValidateMethodArgs validates args against a method manifest.
func (manifest *Manifest) ValidateMethodArgs(m *MethodManifest, args map[string]interface{}) error {
	if m.ArgsModelRef != "" {
		return manifest.validateModelReference("args", args, m.ArgsModelRef)
	}

	if m.Args == nil {
		if len(args) > 0 {
			return &ValidationError{
				Field:   "arguments",
				Message: "method does not accept arguments",
				Value:   args,
			}
		}
		return nil
	}

	for argName, argManifest := range m.Args {
		if argManifest.Required {
			if _, exists := args[argName]; !exists {
				return &ValidationError{
					Field:   argName,
					Message: "required argument missing",
				}
			}
		}
	}

	for argName, argValue := range args {
		argManifest, exists := m.Args[argName]
		if !exists {
			return &ValidationError{
				Field:   argName,
				Message: "unknown argument",
				Value:   argValue,
			}
		}
		if err := manifest.validateArgument(argName, argValue, argManifest); err != nil {
			return err
		}
	}
	return nil
}

func (manifest *Manifest) validateArgument(name string, value interface{}, argManifest *ArgumentManifest) error {
	if value == nil {
		if argManifest.Required {
			return &ValidationError{
				Field:   name,
				Message: "required argument cannot be null",
			}
		}
		return nil
	}

	if err := manifest.validateArgumentType(name, value, argManifest); err != nil {
		return err
	}

	if argManifest.Type == "string" {
		strValue := value.(string)
		if argManifest.Pattern != "" {
			matched, err := regexp.MatchString(argManifest.Pattern, strValue)
			if err != nil {
				return &ValidationError{
					Field:   name,
					Message: fmt.Sprintf("invalid pattern regex: %s", err.Error()),
					Value:   value,
				}
			}
			if !matched {
				return &ValidationError{
					Field:   name,
					Message: fmt.Sprintf("value does not match pattern: %s", argManifest.Pattern),
					Value:   value,
				}
			}
		}
		if argManifest.MinLength != nil && len(strValue) < *argManifest.MinLength {
			return &ValidationError{
				Field:   name,
				Message: fmt.Sprintf("string length %d is less than minimum %d", len(strValue), *argManifest.MinLength),
				Value:   value,
			}
		}
		if argManifest.MaxLength != nil && len(strValue) > *argManifest.MaxLength {
			return &ValidationError{
				Field:   name,
				Message: fmt.Sprintf("string length %d exceeds maximum %d", len(strValue), *argManifest.MaxLength),
				Value:   value,
			}
		}
	}

	if argManifest.Type == "number" || argManifest.Type == "integer" {
		if numValue, err := getNumericValue(value); err == nil {
			if argManifest.Minimum != nil && numValue < *argManifest.Minimum {
				return &ValidationError{
					Field:   name,
					Message: fmt.Sprintf("value %f is less than minimum %f", numValue, *argManifest.Minimum),
					Value:   value,
				}
			}
			if argManifest.Maximum != nil && numValue > *argManifest.Maximum {
				return &ValidationError{
					Field:   name,
					Message: fmt.Sprintf("value %f exceeds maximum %f", numValue, *argManifest.Maximum),
					Value:   value,
				}
			}
		}
	}

	if len(argManifest.Enum) > 0 {
		strValue := fmt.Sprintf("%v", value)
		valid := false
		for _, enumValue := range argManifest.Enum {
			if strValue == enumValue {
				valid = true
				break
			}
		}
		if !valid {
			return &ValidationError{
				Field:   name,
				Message: fmt.Sprintf("value not in allowed enum values: %v", argManifest.Enum),
				Value:   value,
			}
		}
	}

	if argManifest.Type == "array" && argManifest.Items != nil {
		for i, item := range value.([]interface{}) {
			if err := manifest.validateArgument(fmt.Sprintf("%s[%d]", name, i), item, argManifest.Items); err != nil {
				return err
			}
		}
	}

	if argManifest.ModelRef != "" {
		if err := manifest.validateModelReference(name, value, argManifest.ModelRef); err != nil {
			return err
		}
	}
	return nil
}

func (manifest *Manifest) validateArgumentType(name string, value interface{}, argManifest *ArgumentManifest) error {
	var ok bool
	switch argManifest.Type {
	case "string":
		_, ok = value.(string)
	case "number":
		ok = isNumericType(value)
	case "integer":
		ok = isIntegerType(value)
	case "boolean":
		_, ok = value.(bool)
	case "array":
		_, ok = value.([]interface{})
	case "object":
		_, ok = value.(map[string]interface{})
	case "any":
		ok = true
	default:
		return &ValidationError{
			Field:   name,
			Message: fmt.Sprintf("unknown type: %s", argManifest.Type),
			Value:   value,
		}
	}
	if !ok {
		return &ValidationError{
			Field:   name,
			Message: fmt.Sprintf("expected %s type", argManifest.Type),
			Value:   value,
		}
	}
	return nil
}

func (manifest *Manifest) validateModelReference(name string, value interface{}, modelRef string) error {
	model, exists := manifest.Models[modelRef]
	if !exists {
		return &ValidationError{
			Field:   name,
			Message: fmt.Sprintf("model reference '%s' not found", modelRef),
			Value:   value,
		}
	}
	if model.Type != "object" {
		return nil
	}

	valueMap, ok := value.(map[string]interface{})
	if !ok {
		return &ValidationError{
			Field:   name,
			Message: "expected object for model reference",
			Value:   value,
		}
	}

	for _, requiredProp := range model.Required {
		if _, exists := valueMap[requiredProp]; !exists {
			return &ValidationError{
				Field:   fmt.Sprintf("%s.%s", name, requiredProp),
				Message: "required property missing in model",
			}
		}
	}

	for propName, propValue := range valueMap {
		propManifest, exists := model.Properties[propName]
		if !exists {
			return &ValidationError{
				Field:   fmt.Sprintf("%s.%s", name, propName),
				Message: "unknown property in model",
				Value:   propValue,
			}
		}
		if err := manifest.validateArgument(fmt.Sprintf("%s.%s", name, propName), propValue, propManifest); err != nil {
			return err
		}
	}
	return nil
}

func isNumericType(value interface{}) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case float32, float64, json.Number:
		return true
	default:
		return false
	}
}

func isIntegerType(value interface{}) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := v.Int64()
		return err == nil
	default:
		if numVal, err := getNumericValue(value); err == nil {
			return numVal == float64(int64(numVal))
		}
		return false
	}
}

func getNumericValue(value interface{}) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert to numeric value")
	}
}

// Validate checks the manifest itself for consistency.
func (manifest *Manifest) Validate() error {
	if manifest.Version == "" {
		return fmt.Errorf("manifest version is required")
	}
	if manifest.Name == "" {
		return fmt.Errorf("manifest name is required")
	}
	if len(manifest.Channels) == 0 {
		return fmt.Errorf("manifest must declare at least one channel")
	}

	for channelID, channel := range manifest.Channels {
		if channelID == "" {
			return fmt.Errorf("channel ID cannot be empty")
		}
		if channel == nil {
			return fmt.Errorf("channel '%s' has no definition", channelID)
		}
		if len(channel.Methods) == 0 {
			return fmt.Errorf("channel '%s' must declare at least one method", channelID)
		}
		for methodName, m := range channel.Methods {
			if m == nil {
				return fmt.Errorf("method '%s.%s' has no definition", channelID, methodName)
			}
			if m.ArgsModelRef != "" {
				if _, ok := manifest.Models[m.ArgsModelRef]; !ok {
					return fmt.Errorf("method '%s.%s' references unknown model '%s'", channelID, methodName, m.ArgsModelRef)
				}
			}
			for argName, arg := range m.Args {
				if err := manifest.validateArgumentManifest(fmt.Sprintf("%s.%s.%s", channelID, methodName, argName), arg); err != nil {
					return err
				}
			}
		}
	}

	for modelName, model := range manifest.Models {
		if model.Type == "" {
			return fmt.Errorf("model '%s' type is required", modelName)
		}
		for propName, prop := range model.Properties {
			if err := manifest.validateArgumentManifest(fmt.Sprintf("model.%s.%s", modelName, propName), prop); err != nil {
				return err
			}
		}
	}
	return nil
}

func (manifest *Manifest) validateArgumentManifest(context string, argManifest *ArgumentManifest) error {
	if argManifest == nil || argManifest.Type == "" {
		return fmt.Errorf("argument type is required for '%s'", context)
	}

	validType := false
	for _, vt := range validTypes {
		if argManifest.Type == vt {
			validType = true
			break
		}
	}
	if !validType {
		return fmt.Errorf("invalid argument type '%s' for '%s', must be one of: %s", argManifest.Type, context, strings.Join(validTypes, ", "))
	}

	if argManifest.Pattern != "" {
		if _, err := regexp.Compile(argManifest.Pattern); err != nil {
			return fmt.Errorf("invalid regex pattern for '%s': %s", context, err.Error())
		}
	}
	if argManifest.Minimum != nil && argManifest.Maximum != nil && *argManifest.Minimum > *argManifest.Maximum {
		return fmt.Errorf("minimum value cannot be greater than maximum value for '%s'", context)
	}
	if argManifest.MinLength != nil && argManifest.MaxLength != nil && *argManifest.MinLength > *argManifest.MaxLength {
		return fmt.Errorf("minimum length cannot be greater than maximum length for '%s'", context)
	}
	if argManifest.ModelRef != "" {
		if _, ok := manifest.Models[argManifest.ModelRef]; !ok {
			return fmt.Errorf("unknown model '%s' referenced by '%s'", argManifest.ModelRef, context)
		}
	}
	if argManifest.Items != nil {
		return manifest.validateArgumentManifest(context+"[]", argManifest.Items)
	}
	return nil
}
