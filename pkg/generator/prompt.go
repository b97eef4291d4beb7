package generator

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/shouni/chara-varia-kit/pkg/domain"
)

// removeBackgroundPrompt は背景削除編集に使う固定プロンプトです。
const removeBackgroundPrompt = "Remove the background of this illustration completely. " +
	"Keep the character exactly as it is, pixel for pixel, and make the background fully transparent. " +
	"Return a PNG with an alpha channel."

// BuildVariationPrompt は1行の差分指示とスタイル制約から生成プロンプトを組み立てます。
// 文言そのものは実装詳細であり、制約の網羅性（ロック、パレット、強度バケット）が契約です。
func BuildVariationPrompt(variation string, style domain.StyleConstraints) string {
	var sb strings.Builder

	sb.WriteString("You are editing a single character illustration. ")
	sb.WriteString("Apply exactly this one change to the base character: ")
	sb.WriteString(variation)
	sb.WriteString(".\n")

	if locked := lockedAttributes(style.Locks); len(locked) > 0 {
		sb.WriteString("Preserve the character's identity. Do not change: ")
		sb.WriteString(strings.Join(locked, ", "))
		sb.WriteString(".\n")
	}

	writePaletteClause(&sb, style)

	fmt.Fprintf(&sb, "Expression intensity: %s. ", domain.BucketOf(style.ExpressionIntensity))
	fmt.Fprintf(&sb, "If the change adds any props, their size should be %s.\n", propSizeWord(domain.BucketOf(style.PropSize)))

	sb.WriteString("Keep the same canvas size and art style. Return only the edited illustration.")
	return sb.String()
}

// outlinePrompt は縁取り編集のプロンプトを組み立てます。
func outlinePrompt(outlineColor string, outlineWidthPx int) string {
	color := outlineColor
	if _, err := colorful.Hex(outlineColor); err != nil {
		color = "#ffffff"
	}
	return fmt.Sprintf(
		"Add a solid outline of color %s, approximately %d pixels wide, around the entire character silhouette. "+
			"Do not alter the character itself. Keep the same canvas size.",
		color, outlineWidthPx)
}

func lockedAttributes(l domain.ConsistencyLocks) []string {
	var attrs []string
	if l.HeadShape {
		attrs = append(attrs, "head and face shape")
	}
	if l.EyeStyle {
		attrs = append(attrs, "eye style")
	}
	if l.MouthStyle {
		attrs = append(attrs, "mouth style")
	}
	if l.OutlineThickness {
		attrs = append(attrs, "outline thickness")
	}
	if l.ShadingStyle {
		attrs = append(attrs, "shading style")
	}
	return attrs
}

// writePaletteClause はブランドカラーの指定をプロンプトに追記します。
// 不正な16進表記の色は黙って無視します（バリデーションは UI 層の責務）。
func writePaletteClause(sb *strings.Builder, style domain.StyleConstraints) {
	primary, perr := colorful.Hex(style.PrimaryColor)
	secondary, serr := colorful.Hex(style.SecondaryColor)

	if perr != nil && serr != nil {
		return
	}

	var colors []string
	if perr == nil {
		colors = append(colors, primary.Hex())
	}
	if serr == nil {
		colors = append(colors, secondary.Hex())
	}

	if style.StrictPalette {
		fmt.Fprintf(sb, "Use ONLY these exact colors (plus black and white for lines): %s.\n", strings.Join(colors, ", "))
		return
	}
	fmt.Fprintf(sb, "Favor this brand color palette where it fits naturally: %s.\n", strings.Join(colors, ", "))
}

func propSizeWord(b domain.IntensityBucket) string {
	switch b {
	case domain.BucketLow:
		return "small"
	case domain.BucketHigh:
		return "large"
	default:
		return "medium"
	}
}
