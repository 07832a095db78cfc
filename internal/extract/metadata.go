package extract

import "regexp"

// MetadataPrefix is prepended to every key lifted out of a metadata marker.
const MetadataPrefix = "extracted_"

var metadataPattern = regexp.MustCompile(`<!-- @(.*?): (.*?) -->`)

// ExtractMetadata collects every "<!-- @key: value -->" marker in body.
// Keys are returned with MetadataPrefix; a repeated key keeps its last value.
func ExtractMetadata(body string) map[string]string {
	fields := make(map[string]string)
	for _, m := range metadataPattern.FindAllStringSubmatch(body, -1) {
		fields[MetadataPrefix+m[1]] = m[2]
	}
	return fields
}
