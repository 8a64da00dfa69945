package database

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"time"
)

// bindValues 按类型转换绑定参数：
// 整数与布尔绑定为 int64，时间按方言日期格式转为字符串，NULL 保持 nil，其余一律转字符串。
func bindValues(bindings []any, dateFormat string) []any {
	if len(bindings) == 0 {
		return nil
	}
	out := make([]any, len(bindings))
	for i, v := range bindings {
		out[i] = bindValue(v, dateFormat)
	}
	return out
}

func bindValue(v any, dateFormat string) any {
	switch x := v.(type) {
	case nil:
		return nil
	case sql.NamedArg:
		return sql.Named(x.Name, bindValue(x.Value, dateFormat))
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return uintValue(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return uintValue(x)
	case time.Time:
		return x.Format(dateFormat)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.Format(dateFormat)
	case string:
		return x
	case []byte:
		if x == nil {
			return nil
		}
		return string(x)
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return bindValue(dv, dateFormat)
	default:
		return bindKind(x)
	}
}

// bindKind 具名整数、布尔类型（如 type UserID int64）按底层种类绑定
func bindKind(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return bindValue(rv.Bool(), "")
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return uintValue(rv.Uint())
	default:
		return fmt.Sprint(v)
	}
}

// 超出 int64 的无符号数无法作为整数参数，退化为字符串
func uintValue(u uint64) any {
	if u > math.MaxInt64 {
		return fmt.Sprint(u)
	}
	return int64(u)
}
