package transformer

import (
	"errors"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// IsBinaryContentType 判断是否为二进制内容类型
func IsBinaryContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	binaryPrefixes := []string{"image/", "video/", "audio/", "application/octet-stream", "font/", "application/pdf", "application/zip"}
	for _, prefix := range binaryPrefixes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// QueryString 返回 URL 中的查询串（含 ?），没有查询参数时返回空串
func QueryString(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

// BuildQueryURL 以 JSON 对象重建 URL 的查询参数：原有参数被清空，null 值跳过
func BuildQueryURL(rawURL string, params []byte) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	values := url.Values{}
	if len(params) > 0 {
		res := gjson.ParseBytes(params)
		if res.Type != gjson.Null && !res.IsObject() {
			return "", errors.New("params must be a JSON object")
		}
		res.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.Null {
				return true
			}
			values.Set(key.String(), value.String())
			return true
		})
	}

	u.RawQuery = values.Encode()
	return u.String(), nil
}
