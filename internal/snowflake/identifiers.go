// Package snowflake provides the warehouse client used to stage files and
// manage Streamlit application objects, plus helpers for safe SQL composition.
package snowflake

import (
	"fmt"
	"regexp"
	"strings"
)

// maxIdentifierLength mirrors the warehouse limit for unquoted identifiers.
const maxIdentifierLength = 255

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// ValidateIdentifier checks that name is a legal unquoted object identifier.
// stagectl deliberately rejects names that would need double quoting: quoted
// identifiers are case-sensitive and a frequent source of silently duplicated
// objects.
func ValidateIdentifier(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("identifier is empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier %q exceeds %d characters", name, maxIdentifierLength)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: use letters, digits, _ or $, starting with a letter or _", name)
	}
	return nil
}

var stageSegmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateStagePath checks a stage-relative path such as a stage prefix.
// Paths are slash-separated, must not be rooted, and must not traverse up.
func ValidateStagePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("stage path is empty")
	}
	if strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return fmt.Errorf("stage path %q must not start or end with a slash", path)
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == "." || segment == ".." {
			return fmt.Errorf("stage path %q must not contain %q segments", path, segment)
		}
		if !stageSegmentPattern.MatchString(segment) {
			return fmt.Errorf("stage path segment %q contains unsupported characters", segment)
		}
	}
	return nil
}

// QuoteLiteral wraps s in single quotes, escaping backslashes and quotes.
func QuoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `''`)
	return "'" + s + "'"
}

// QualifiedName joins database, schema and object name with dots.
func QualifiedName(database, schema, name string) string {
	return fmt.Sprintf("%s.%s.%s", database, schema, name)
}

// StageLocation composes the stage reference DB.SCHEMA.STAGE[/path] without
// the leading @.
func StageLocation(database, schema, stage, path string) string {
	loc := QualifiedName(database, schema, stage)
	if path != "" {
		loc += "/" + path
	}
	return loc
}
