// Package jobs は非同期変換ジョブのライフサイクル管理を提供します。
package jobs

import (
	"encoding/json"
	"fmt"
	"image"
)

// Status はジョブの実行状態を表します。
// 遷移は pending → processing → completed / error の一方向のみです。
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal は終端状態（completed / error）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// 変換パラメータのデフォルト値。
const (
	DefaultDPI           = 300
	DefaultConfThreshold = 60
	DefaultLang          = "spa"
)

// Area はページの切り抜き範囲（left, upper, right, lower のピクセル座標）です。
type Area struct {
	Left  int
	Upper int
	Right int
	Lower int
}

// Valid は left<right かつ upper<lower を満たすか返します。
func (a Area) Valid() bool {
	return a.Left < a.Right && a.Upper < a.Lower
}

// Rect は image.Rectangle へ変換します。
func (a Area) Rect() image.Rectangle {
	return image.Rect(a.Left, a.Upper, a.Right, a.Lower)
}

// MarshalJSON は [left, upper, right, lower] 形式の配列で出力します。
func (a Area) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{a.Left, a.Upper, a.Right, a.Lower})
}

// UnmarshalJSON は4要素の整数配列を受け付けます。
func (a *Area) UnmarshalJSON(data []byte) error {
	var coords []int
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if len(coords) != 4 {
		return fmt.Errorf("area debe ser un arreglo de 4 enteros")
	}
	a.Left, a.Upper, a.Right, a.Lower = coords[0], coords[1], coords[2], coords[3]
	return nil
}

// Params はジョブ作成時に確定する変換パラメータのスナップショットです。
type Params struct {
	DPI           int    `json:"dpi"`
	ConfThreshold int    `json:"conf_threshold"`
	Lang          string `json:"lang"`
	Area          *Area  `json:"area,omitempty"`
}

// Normalize は範囲外の値をデフォルトに置き換えたコピーを返します。
// 不正な Area は切り抜きなしに降格します。
func (p Params) Normalize() Params {
	if p.DPI <= 0 {
		p.DPI = DefaultDPI
	}
	if p.ConfThreshold < 0 || p.ConfThreshold > 100 {
		p.ConfThreshold = DefaultConfThreshold
	}
	if p.Lang == "" {
		p.Lang = DefaultLang
	}
	if p.Area != nil && !p.Area.Valid() {
		p.Area = nil
	}
	return p
}

// ResultRefKind は結果本文の保持方法を表します。
type ResultRefKind string

const (
	ResultNone     ResultRefKind = "none"     // 結果なし（未完了またはエラー）
	ResultInline   ResultRefKind = "inline"   // メタデータに本文を内包
	ResultExternal ResultRefKind = "external" // <id>_result.txt へ外部保存
)

// Record はジョブの現在状態を表します。Result は completed のときにのみ
// 設定され、Message は error のときにのみ設定されます。
type Record struct {
	ID         string `json:"id"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
	Params     Params `json:"params"`
	Result     string `json:"result,omitempty"`
}

// Clone は Record の深いコピーを返します。
func (r *Record) Clone() *Record {
	clone := *r
	if r.Params.Area != nil {
		area := *r.Params.Area
		clone.Params.Area = &area
	}
	return &clone
}
