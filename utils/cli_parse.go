package utils

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ParseParams parses a list of "path.to.field=value" tokens (CLI arguments
// or environment variables) into a configuration struct via json.Unmarshal.
// An optional prefix is prepended to every path, so the same tokens can be
// namespaced per tool. Tokens without a "=" are ignored.
func ParseParams(prefix string, args []string, out interface{}) error {
	outType := reflect.TypeOf(out).Elem()

	fieldTypes := make(map[string]reflect.Type)
	buildFieldTypesMap(outType, "", fieldTypes)

	data := map[string]interface{}{}
	for _, k := range args {
		tmp := data
		components := strings.SplitN(k, "=", 2)
		if len(components) < 2 {
			continue
		}
		varPath := components[0]
		val := components[1]
		pathElems := strings.Split(varPath, ".")
		if prefix != "" {
			pathElems = append([]string{prefix}, pathElems...)
		}

		fieldType := fieldTypes[strings.Join(pathElems, ".")]

		for i, v := range pathElems {
			if i == len(pathElems)-1 {
				tmp[v] = convertValue(val, fieldType)
				continue
			}
			if existing, ok := tmp[v]; ok {
				existingDict, ok := existing.(map[string]interface{})
				if !ok {
					return fmt.Errorf("namespace collision: %v", v)
				}
				tmp = existingDict
				continue
			}
			newDict := map[string]interface{}{}
			tmp[v] = newDict
			tmp = newDict
		}
	}

	j, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(j, out); err != nil {
		return err
	}
	return nil
}

// buildFieldTypesMap recursively maps JSON tag paths to their field types so
// string values can be converted before unmarshaling.
func buildFieldTypesMap(t reflect.Type, prefix string, fieldTypes map[string]reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		jsonTag := field.Tag.Get("json")
		if jsonTag == "" {
			jsonTag = field.Name
		}
		jsonTag = strings.Split(jsonTag, ",")[0]

		currentPath := jsonTag
		if prefix != "" {
			currentPath = prefix + "." + jsonTag
		}

		if field.Type.Kind() == reflect.Struct {
			buildFieldTypesMap(field.Type, currentPath, fieldTypes)
		}
		fieldTypes[currentPath] = field.Type
	}
}

func convertValue(val string, fieldType reflect.Type) interface{} {
	if fieldType == nil {
		if b, err := strconv.ParseBool(val); val != "0" && val != "1" && err == nil {
			return b
		}
		if num, err := strconv.ParseInt(val, 10, 64); err == nil {
			return num
		}
		return val
	}

	switch fieldType.Kind() {
	case reflect.Bool:
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		return val
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if num, err := strconv.ParseInt(val, 10, 64); err == nil {
			return num
		}
		return val
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if num, err := strconv.ParseUint(val, 10, 64); err == nil {
			return num
		}
		return val
	case reflect.Float32, reflect.Float64:
		if num, err := strconv.ParseFloat(val, 64); err == nil {
			return num
		}
		return val
	default:
		return val
	}
}
