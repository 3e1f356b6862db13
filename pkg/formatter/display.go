package formatter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/bizlog/pkg/snapshot"
)

// Display converts a raw value to its identity display string.
// nil renders as the empty string; slices render their elements joined by ",".
func Display(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}

	if snapshot.IsNil(v) {
		return ""
	}
	if elems, ok := snapshot.Elements(v); ok {
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = Display(e)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}
