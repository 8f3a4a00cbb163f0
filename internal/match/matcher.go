package match

import (
	"fmt"
	"sort"
	"strings"

	"SafeSignal/internal/geo"
	"SafeSignal/internal/models"
)

// Severity 紧急度分级，由 (警报类型, 距离) 确定性推导
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Candidate 匹配结果项
type Candidate struct {
	ResponderID string               `json:"responder_id"`
	UserID      string               `json:"user_id"`
	Type        models.ResponderType `json:"responder_type"`
	DistanceKm  float64              `json:"distance_km"`
	Bearing     string               `json:"bearing"`
	ETAMinutes  int                  `json:"eta_minutes"`
	Severity    Severity             `json:"severity"`
}

// Query 匹配输入
type Query struct {
	RadiusKm       float64 // <=0 时取 DefaultRadiusKm
	ResponderTypes []models.ResponderType
	Severity       Severity // 可选，只保留该级别
	Text           string   // 可选，对 message/type/坐标串做子串匹配
}

// DefaultRadiusKm 默认匹配半径
const DefaultRadiusKm = 1.0

// PresenceSource 由 presence.Registry 实现
type PresenceSource interface {
	Query(center models.Location, radiusKm float64, types []models.ResponderType) []models.ResponderPresence
}

// Matcher 围绕警报对响应者做排序过滤。
// 输出对同样的输入是确定的：距离升序，距离相同按 responderId 字典序。
type Matcher struct {
	presence PresenceSource
	speedKmh float64
}

func NewMatcher(presence PresenceSource, speedKmh float64) *Matcher {
	if speedKmh <= 0 {
		speedKmh = geo.DefaultSpeedKmh
	}
	return &Matcher{presence: presence, speedKmh: speedKmh}
}

// Match 返回排好序的候选列表；空注册表或空半径返回空列表而不是错误
func (m *Matcher) Match(alert models.Alert, q Query) []Candidate {
	radius := q.RadiusKm
	if radius <= 0 {
		radius = DefaultRadiusKm
	}

	center := alert.Location()
	records := m.presence.Query(center, radius, q.ResponderTypes)

	candidates := make([]Candidate, 0, len(records))
	for _, p := range records {
		d := geo.DistanceKm(center, p.Location())
		c := Candidate{
			ResponderID: p.ResponderID,
			UserID:      p.UserID,
			Type:        p.ResponderType,
			DistanceKm:  d,
			Bearing:     geo.Bearing(p.Location(), center),
			ETAMinutes:  geo.ETA(d, m.speedKmh),
			Severity:    Classify(alert.Type, d),
		}
		if q.Severity != "" && c.Severity != q.Severity {
			continue
		}
		if q.Text != "" && !matchesText(alert, q.Text) {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm != candidates[j].DistanceKm {
			return candidates[i].DistanceKm < candidates[j].DistanceKm
		}
		return candidates[i].ResponderID < candidates[j].ResponderID
	})
	return candidates
}

// Classify 纯函数：同样的 (type, distance) 永远得到同样的级别
func Classify(alertType models.AlertType, distanceKm float64) Severity {
	urgent := alertType == models.AlertTypeSOS || alertType == models.AlertTypeGoLive
	switch {
	case distanceKm < 0.5 && urgent:
		return SeverityCritical
	case distanceKm < 1.0 || alertType == models.AlertTypeSOS:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func matchesText(alert models.Alert, text string) bool {
	needle := strings.ToLower(text)
	haystack := strings.ToLower(fmt.Sprintf("%s %s %.4f,%.4f",
		alert.Message, alert.Type, alert.Lat, alert.Lng))
	return strings.Contains(haystack, needle)
}
