package vectorstore

import (
	"fmt"
	"math"
	"strings"

	"pai-semantic-go/internal/model"
)

// Metric 是相似度度量方式。
type Metric string

const (
	Cosine     Metric = "cosine"
	Euclidean  Metric = "euclidean"
	DotProduct Metric = "dot"
	Manhattan  Metric = "manhattan"
)

// ParseMetric 解析度量名称，空字符串返回 Cosine。
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", Cosine:
		return Cosine, nil
	case Euclidean:
		return Euclidean, nil
	case DotProduct, "dot_product":
		return DotProduct, nil
	case Manhattan:
		return Manhattan, nil
	}
	return "", fmt.Errorf("%w: unknown similarity metric %q", model.ErrValidation, s)
}

// CosineSimilarity 返回 a·b/(|a||b|)，任一向量模长为 0 时返回 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Dot 返回两个向量的点积。
func Dot(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// EuclideanDistance 返回 L2 距离。
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// ManhattanDistance 返回 L1 距离。
func ManhattanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}

// Score 按度量计算 (similarity, distance)。
// 距离型度量通过 1/(1+d) 转换为相似度；余弦与点积的距离定义为 1-similarity。
func Score(metric Metric, a, b []float32) (similarity, distance float64) {
	switch metric {
	case Euclidean:
		d := EuclideanDistance(a, b)
		return 1 / (1 + d), d
	case Manhattan:
		d := ManhattanDistance(a, b)
		return 1 / (1 + d), d
	case DotProduct:
		s := Dot(a, b)
		return s, 1 - s
	default:
		s := CosineSimilarity(a, b)
		return s, 1 - s
	}
}
