package domain

// ConsistencyLocks はバッチ内のすべての生成で固定するキャラクター属性のロック群です。
// いずれも既定で有効です。
type ConsistencyLocks struct {
	HeadShape        bool `json:"head_shape"`
	EyeStyle         bool `json:"eye_style"`
	MouthStyle       bool `json:"mouth_style"`
	OutlineThickness bool `json:"outline_thickness"`
	ShadingStyle     bool `json:"shading_style"`
}

// DefaultLocks はすべてのロックを有効にした既定値を返します。
func DefaultLocks() ConsistencyLocks {
	return ConsistencyLocks{
		HeadShape:        true,
		EyeStyle:         true,
		MouthStyle:       true,
		OutlineThickness: true,
		ShadingStyle:     true,
	}
}

// IntensityBucket は 0-100 のダイヤル値を粗い定性バケットに落としたものです。
type IntensityBucket string

const (
	BucketLow    IntensityBucket = "low"
	BucketMedium IntensityBucket = "medium"
	BucketHigh   IntensityBucket = "high"
)

// BucketOf はダイヤル値をバケットに変換します。33未満は low、66未満は medium、
// それ以外は high です。
func BucketOf(value int) IntensityBucket {
	switch {
	case value < 33:
		return BucketLow
	case value < 66:
		return BucketMedium
	default:
		return BucketHigh
	}
}

// StyleConstraints は1回のバッチ実行中、全リクエストに共通して適用される
// 不変のスタイル制約です。
type StyleConstraints struct {
	PrimaryColor        string           `json:"primary_color"`
	SecondaryColor      string           `json:"secondary_color"`
	StrictPalette       bool             `json:"strict_palette"`
	Locks               ConsistencyLocks `json:"locks"`
	ExpressionIntensity int              `json:"expression_intensity"`
	PropSize            int              `json:"prop_size"`
	// Seed を固定するとバッチをまたいだキャラクターの同一性が安定します。
	// nil の場合は毎回ランダムです。
	Seed *int64 `json:"seed,omitempty"`
}

// DefaultStyleConstraints は UI の初期状態に対応する既定の制約を返します。
func DefaultStyleConstraints() StyleConstraints {
	return StyleConstraints{
		Locks:               DefaultLocks(),
		ExpressionIntensity: 50,
		PropSize:            50,
	}
}
