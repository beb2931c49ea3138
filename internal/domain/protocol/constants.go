package protocol

import "strings"

// OCPP协议版本常量
const (
	OCPP_VERSION_1_6 = "ocpp1.6"

	// 默认版本
	DEFAULT_VERSION = OCPP_VERSION_1_6
)

// SupportedVersions 本系统支持的WebSocket子协议
var SupportedVersions = []string{
	OCPP_VERSION_1_6,
}

// 版本映射表 - 处理各种格式的版本号
var VersionMapping = map[string]string{
	"1.6":     OCPP_VERSION_1_6,
	"ocpp1.6": OCPP_VERSION_1_6,
	"OCPP1.6": OCPP_VERSION_1_6,
}

// NormalizeVersion 规范化协议版本，不支持时返回空串
func NormalizeVersion(version string) string {
	if normalized, exists := VersionMapping[strings.TrimSpace(version)]; exists {
		return normalized
	}
	return ""
}

// IsVersionSupported 检查版本是否支持
func IsVersionSupported(version string) bool {
	return NormalizeVersion(version) != ""
}

// NegotiateSubprotocol 从客户端提供的子协议列表中选出第一个受支持的版本
func NegotiateSubprotocol(offered []string) (string, bool) {
	for _, v := range offered {
		if normalized := NormalizeVersion(v); normalized != "" {
			return normalized, true
		}
	}
	return "", false
}

// GetSupportedVersions 获取支持的版本列表
func GetSupportedVersions() []string {
	// 返回副本，避免外部修改
	result := make([]string, len(SupportedVersions))
	copy(result, SupportedVersions)
	return result
}
