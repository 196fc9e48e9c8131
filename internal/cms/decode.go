package cms

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Media is an uploaded file reference. Strapi returns a single media field
// either as an object or as a list depending on the field settings.
type Media struct {
	URL             string `mapstructure:"url"`
	AlternativeText string `mapstructure:"alternativeText"`
	Mime            string `mapstructure:"mime"`
}

var mediaType = reflect.TypeOf(Media{})

// mediaHook collapses a media list to its first element.
func mediaHook(from, to reflect.Type, data any) (any, error) {
	if to != mediaType || from.Kind() != reflect.Slice {
		return data, nil
	}
	items := reflect.ValueOf(data)
	if items.Len() == 0 {
		return map[string]any{}, nil
	}
	return items.Index(0).Interface(), nil
}

// Decode maps a generic JSON value onto out using mapstructure tags.
// Numbers sent as strings and similar loose typing are accepted.
func Decode(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mediaHook,
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("cms decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("cms decode: %w", err)
	}
	return nil
}
