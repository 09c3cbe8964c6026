package transformer

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"minidebug/pkg/rulespec"
)

// PatchJSON 按 JSON Patch 子集 (add / replace / remove) 修改 JSON 文本，失败时返回原文
func PatchJSON(body string, patches []rulespec.JSONPatchOp) (string, error) {
	if len(patches) == 0 {
		return body, nil
	}
	if !gjson.Valid(body) {
		return body, fmt.Errorf("patch target is not valid JSON")
	}

	out := body
	for _, p := range patches {
		if p.Path == "" || p.Path == "/" {
			continue
		}
		path := pointerToPath(p.Path)

		var err error
		switch p.Op {
		case "add", "replace":
			out, err = sjson.Set(out, path, p.Value)
		case "remove":
			out, err = sjson.Delete(out, path)
		default:
			err = fmt.Errorf("unsupported patch op %q", p.Op)
		}
		if err != nil {
			return body, fmt.Errorf("patch %s %s: %w", p.Op, p.Path, err)
		}
	}
	return out, nil
}

// pointerToPath 将 JSON Pointer (/a/b~1c/-) 转为 sjson 路径 (a.b/c.-1)
func pointerToPath(pointer string) string {
	tokens := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i, tok := range tokens {
		if tok == "-" {
			tokens[i] = "-1"
			continue
		}
		tok = strings.ReplaceAll(tok, "~1", "/")
		tok = strings.ReplaceAll(tok, "~0", "~")
		tokens[i] = pathEscaper.Replace(tok)
	}
	return strings.Join(tokens, ".")
}

var pathEscaper = strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`, "@", `\@`)

// DecodeBody 根据编码方式解码
func DecodeBody(input string, encoding rulespec.BodyEncoding) (string, error) {
	if encoding == rulespec.BodyEncodingBase64 {
		decoded, err := base64.StdEncoding.DecodeString(input)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}
	return input, nil
}

// IsEmptyJSON 判断 JSON 是否为空值：空串、null、{} 或 []
func IsEmptyJSON(data []byte) bool {
	if len(strings.TrimSpace(string(data))) == 0 {
		return true
	}
	res := gjson.ParseBytes(data)
	switch {
	case res.Type == gjson.Null:
		return true
	case res.IsObject(), res.IsArray():
		empty := true
		res.ForEach(func(_, _ gjson.Result) bool {
			empty = false
			return false
		})
		return empty
	}
	return false
}
