// Package batch は差分生成バッチのオーケストレーションを担当します。
// 1回の実行はベース画像・差分指示リスト・スタイル制約を受け取り、外部の
// 画像生成クライアントを厳密に逐次で呼び出しながら、成功結果を少しずつ
// 公開していきます。最初の失敗で即座に中断し、それまでの成功分は保持します。
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/shouni/chara-varia-kit/pkg/domain"
)

// MaxBatchSize は1回のバッチで受け付ける差分指示の上限です。
// 外部APIのコストと時間を抑え、進捗表示を意味のあるものに保つための天井です。
const MaxBatchSize = 30

var (
	// ErrNoBaseImage はベース画像なしでの実行要求を表します。
	ErrNoBaseImage = errors.New("ベース画像がアップロードされていません")
	// ErrNoVariations は空行を除いた差分指示が1行もないことを表します。
	ErrNoVariations = errors.New("差分の指示が1行もありません")
	// ErrBatchTooLarge は差分指示が上限を超えたことを表します。
	ErrBatchTooLarge = fmt.Errorf("一度に生成できる差分は%d件までです", MaxBatchSize)
	// ErrRunInProgress は実行中バッチがある間の新規実行を表します。
	ErrRunInProgress = errors.New("別のバッチが実行中です")
	// ErrAlreadyRun は同じ PreparedBatch の再実行を表します。
	ErrAlreadyRun = errors.New("このバッチはすでに実行済みです")
)

// GenerationError は途中で失敗したバッチの失敗位置と原因を保持します。
type GenerationError struct {
	Index  int    // 失敗した指示の0始まりの位置
	Prompt string // 失敗した指示のテキスト
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("「%s」の生成に失敗しました: %v", e.Prompt, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// VariationClient はオーケストレーターから見た生成クライアントです。
type VariationClient interface {
	SynthesizeVariation(ctx context.Context, base *domain.BaseImage, variation string, style domain.StyleConstraints) (domain.EmbeddedImage, error)
}

// PresetStore はプリセット語彙の参照と追加を抽象化します。
type PresetStore interface {
	// Vocabulary は既知のプリセット語句（組み込み + ユーザー定義）を返します。
	Vocabulary() []string
	// AddCustom は新しい語句をユーザー定義プリセットとして永続化します。
	AddCustom(phrases []string) error
}

// Observer はバッチ実行中の進捗と途中結果の通知先です。
type Observer interface {
	// OnProgress はリクエスト発行の直前に (i+1, N) で呼ばれます。
	// 実行終了時（正常・異常とも）にはゼロ値で呼ばれ、進捗表示のクリアを指示します。
	OnProgress(p domain.BatchProgress)
	// OnResult は1件成功するたびに、その時点までの結果スナップショットで呼ばれます。
	OnResult(snapshot []domain.GeneratedImage)
}

// Decision は確認ゲートへの応答です。どちらを選んでも生成は同一に進行し、
// 新しい語句をプリセットとして永続化するかどうかだけが変わります。
type Decision int

const (
	// DecisionSkip は新しい語句を保存せずに生成へ進みます。
	DecisionSkip Decision = iota
	// DecisionSavePresets は新しい語句を保存してから生成へ進みます。
	DecisionSavePresets
)

// Orchestrator は差分生成バッチを逐次実行するコアコンポーネントです。
type Orchestrator struct {
	client  VariationClient
	presets PresetStore
	idSeq   atomic.Int64
	running atomic.Bool
}

// New は依存関係を注入して Orchestrator を初期化します。
// presets は nil を許容します（確認ゲートなし動作）。
func New(client VariationClient, presets PresetStore) (*Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	return &Orchestrator{
		client:  client,
		presets: presets,
	}, nil
}

// Running は実行中のバッチがあるかどうかを返します。
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// PreparedBatch は検証済みで実行待ちのバッチです。NewPhrases が空でなければ、
// 呼び出し側は実行前にプリセット保存の確認を挟むことができます。
// 1つの PreparedBatch は一度だけ実行できます。
type PreparedBatch struct {
	orc      *Orchestrator
	base     *domain.BaseImage
	requests []string
	style    domain.StyleConstraints

	// NewPhrases はプリセット語彙に存在しない差分指示です。
	NewPhrases []string

	consumed atomic.Bool
}

// Requests は空行除去・トリム後の差分指示リストを返します。
func (p *PreparedBatch) Requests() []string {
	return slices.Clone(p.requests)
}

// NeedsConfirmation はプリセット保存の確認が必要かどうかを返します。
func (p *PreparedBatch) NeedsConfirmation() bool {
	return len(p.NewPhrases) > 0
}

// PrepareBatch は入力を検証し、実行待ちのバッチを返します。
// 検証はすべてネットワーク通信の前に行われ、それぞれ固有のエラーで即座に失敗します。
func (o *Orchestrator) PrepareBatch(base *domain.BaseImage, variationText string, style domain.StyleConstraints) (*PreparedBatch, error) {
	if base == nil || base.Image.IsZero() {
		return nil, ErrNoBaseImage
	}

	requests := domain.ParseVariationList(variationText)
	if len(requests) == 0 {
		return nil, ErrNoVariations
	}
	if len(requests) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	return &PreparedBatch{
		orc:        o,
		base:       base,
		requests:   requests,
		style:      style,
		NewPhrases: o.diffAgainstPresets(requests),
	}, nil
}

// diffAgainstPresets は語彙に存在しない指示を入力順で返します。
// 照合は大文字小文字を無視し、重複は1つにまとめます。
func (o *Orchestrator) diffAgainstPresets(requests []string) []string {
	if o.presets == nil {
		return nil
	}

	known := make(map[string]struct{})
	for _, phrase := range o.presets.Vocabulary() {
		known[strings.ToLower(phrase)] = struct{}{}
	}

	var fresh []string
	for _, req := range requests {
		key := strings.ToLower(req)
		if _, ok := known[key]; ok {
			continue
		}
		known[key] = struct{}{}
		fresh = append(fresh, req)
	}
	return fresh
}

// Run はバッチを実行します。決定が DecisionSavePresets なら新しい語句を先に
// 永続化しますが、その成否にかかわらず生成は同一に進行します。
//
// 実行は厳密に逐次で、i番目のリクエスト発行前に (i+1, N) の進捗を通知し、
// 成功のたびに結果スナップショットを通知します。最初の失敗で即座に中断し、
// それまでの成功分と、失敗した指示テキストを特定する GenerationError を返します。
func (p *PreparedBatch) Run(ctx context.Context, decision Decision, obs Observer) ([]domain.GeneratedImage, error) {
	if !p.consumed.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	o := p.orc
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	if obs == nil {
		obs = noopObserver{}
	}
	// 実行終了時に実行中表示をクリアする
	defer obs.OnProgress(domain.BatchProgress{})

	if decision == DecisionSavePresets && len(p.NewPhrases) > 0 && o.presets != nil {
		if err := o.presets.AddCustom(p.NewPhrases); err != nil {
			// プリセット保存の失敗は生成を妨げない
			slog.WarnContext(ctx, "プリセットの保存に失敗しました", "error", err)
		}
	}

	total := len(p.requests)
	results := make([]domain.GeneratedImage, 0, total)

	for i, prompt := range p.requests {
		obs.OnProgress(domain.BatchProgress{Current: i + 1, Total: total})

		img, err := o.client.SynthesizeVariation(ctx, p.base, prompt, p.style)
		if err != nil {
			slog.WarnContext(ctx, "差分生成に失敗したためバッチを中断します",
				"index", i, "prompt", prompt, "error", err)
			return results, &GenerationError{Index: i, Prompt: prompt, Err: err}
		}

		results = append(results, domain.GeneratedImage{
			ID:     o.nextID(),
			Prompt: prompt,
			Image:  img,
		})
		obs.OnResult(slices.Clone(results))
	}

	slog.InfoContext(ctx, "バッチ生成が完了しました", "count", total)
	return results, nil
}

// nextID は生成順由来の一意な識別子を発行します。プロセス中は単調増加で、
// 削除後も再利用されません。
func (o *Orchestrator) nextID() string {
	return fmt.Sprintf("v-%d", o.idSeq.Add(1))
}

type noopObserver struct{}

func (noopObserver) OnProgress(domain.BatchProgress)  {}
func (noopObserver) OnResult([]domain.GeneratedImage) {}
