// Package fdc はUSDA FoodData Central APIのクライアントを提供する。
// レートガバナーによる予約、リトライポリシーによる再試行、
// 上流スキーマの正規化を1つの呼び出し経路にまとめる。
package fdc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/nutrimcp/internal/model"
	"github.com/hitoshi/nutrimcp/internal/quota"
)

const (
	// defaultBaseURL はFDC APIの本番エンドポイント。
	defaultBaseURL = "https://api.nal.usda.gov/fdc/v1"
	// maxPageSize は上流が受け付ける検索ページサイズの上限。
	maxPageSize = 200
	// maxBatchSize は一括取得の上限。上流のハード制約であり設定不可。
	maxBatchSize = 20
	// userAgent は上流への全リクエストに付与するUser-Agent。
	userAgent = "nutrimcp/1.0"
)

// Normalizer は生の上流食品レコードを正規化済みFoodDetailへ変換する。
// 実装はinternal/nutrientが提供する。
type Normalizer interface {
	Normalize(raw *RawFood) *model.FoodDetail
}

// MetricsRecorder は上流呼び出しの観測情報を記録するインターフェース。
type MetricsRecorder interface {
	RecordUpstreamRequest(operation string, statusCode int)
	RecordUpstreamLatency(operation string, d time.Duration)
	RecordRetry(operation string)
	RecordGovernorDenial()
}

// NopMetrics は何も記録しないMetricsRecorder実装。テスト用。
type NopMetrics struct{}

func (NopMetrics) RecordUpstreamRequest(string, int)           {}
func (NopMetrics) RecordUpstreamLatency(string, time.Duration) {}
func (NopMetrics) RecordRetry(string)                          {}
func (NopMetrics) RecordGovernorDenial()                       {}

// statusError は上流が2xx以外のステータスを返したことを表す。
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("上流APIがステータス %d を返しました", e.code)
}

// ClientConfig はClientの設定パラメータ。
type ClientConfig struct {
	// APIKey はFDC APIキー（必須）。
	APIKey string
	// BaseURL は上流エンドポイント。空の場合は本番エンドポイントを使用する。
	BaseURL string
	// DenialWait はガバナー拒否時に待機する上限時間。
	// 0の場合は待機せずRATE_LIMITEDで即時失敗する（フェイルファスト）。
	DenialWait time.Duration
}

// Client はFDC APIのクライアント。
// すべての操作はガバナー予約 → リトライポリシー付きHTTPS呼び出し → 正規化
// の順で実行される。1論理操作につき物理的なHTTPラウンドトリップは1回で、
// リトライは逐次実行される。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	governor   *quota.Governor
	retryer    *Retryer
	normalizer Normalizer
	metrics    MetricsRecorder

	apiKey     string
	baseURL    string // テスト用にエンドポイントを差し替え可能
	denialWait time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(
	httpClient *http.Client,
	governor *quota.Governor,
	retryer *Retryer,
	normalizer Normalizer,
	metrics MetricsRecorder,
	logger *slog.Logger,
	cfg ClientConfig,
) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		governor:   governor,
		retryer:    retryer,
		normalizer: normalizer,
		metrics:    metrics,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		denialWait: cfg.DenialWait,
	}
}

// SearchRequest は食品検索のパラメータ。
type SearchRequest struct {
	Query      string
	DataTypes  []string
	PageSize   int
	PageNumber int
}

// SearchResult は食品検索の結果。
type SearchResult struct {
	Foods        []model.FoodSummary
	TotalResults int
	CurrentPage  int
}

// Search は食品をテキスト検索する。
// クエリがトリム後に空の場合はINVALID_REQUESTを返す。
// PageSizeは1以上が必須で、上流上限（200）を超える値は200に切り詰める。
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, model.NewInvalidRequestError("検索クエリが空です")
	}
	if req.PageSize < 1 {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("page_sizeは1以上を指定してください: %d", req.PageSize))
	}
	if req.PageNumber < 1 {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("page_numberは1以上を指定してください: %d", req.PageNumber))
	}

	pageSize := req.PageSize
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	body := map[string]any{
		"query":      query,
		"pageSize":   pageSize,
		"pageNumber": req.PageNumber,
	}
	if len(req.DataTypes) > 0 {
		body["dataType"] = req.DataTypes
	}

	var resp rawSearchResponse
	if err := c.doJSON(ctx, "search", http.MethodPost, "/foods/search", nil, body, &resp); err != nil {
		return nil, c.mapUpstreamError(err, 0)
	}

	foods := make([]model.FoodSummary, 0, len(resp.Foods))
	for _, f := range resp.Foods {
		foods = append(foods, model.FoodSummary{
			FDCID:        f.FDCID,
			Description:  f.Description,
			DataType:     f.DataType,
			FoodCategory: string(f.FoodCategory),
			BrandOwner:   f.BrandOwner,
		})
	}

	c.logger.Info("食品検索が完了しました",
		slog.String("query", query),
		slog.Int("results", len(foods)),
		slog.Int("total_hits", resp.TotalHits),
	)

	// 上流がcurrentPageを省略した場合はリクエストしたページ番号を使用する
	currentPage := resp.CurrentPage
	if currentPage < 1 {
		currentPage = req.PageNumber
	}

	return &SearchResult{
		Foods:        foods,
		TotalResults: resp.TotalHits,
		CurrentPage:  currentPage,
	}, nil
}

// GetDetail は1つの食品の詳細を取得し、正規化して返す。
// formatは"abridged"（主要栄養素のみ）または"full"（全栄養素）。
// 上流が404を返した場合はNOT_FOUNDを返す。
func (c *Client) GetDetail(ctx context.Context, fdcID int, format string) (*model.FoodDetail, error) {
	if fdcID <= 0 {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("fdc_idは正の整数を指定してください: %d", fdcID))
	}
	if err := validateFormat(format); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("format", format)

	var raw RawFood
	if err := c.doJSON(ctx, "get_detail", http.MethodGet, fmt.Sprintf("/food/%d", fdcID), query, nil, &raw); err != nil {
		return nil, c.mapUpstreamError(err, fdcID)
	}

	detail := c.normalizer.Normalize(&raw)

	c.logger.Info("食品詳細を取得しました",
		slog.Int("fdc_id", fdcID),
		slog.String("format", format),
	)

	return detail, nil
}

// GetBatch は複数食品の詳細を一括取得し、入力と同じ順序で返す。
// IDリストは1件以上・最大20件（上流のハード制約）。
// 上流の一括エンドポイントはこのクライアントから見て原子的であり、
// 部分的な成功という契約は存在しない。失敗時はバッチ全体が失敗する。
func (c *Client) GetBatch(ctx context.Context, fdcIDs []int, format string) ([]*model.FoodDetail, error) {
	if len(fdcIDs) == 0 {
		return nil, model.NewInvalidRequestError("fdc_idsが空です")
	}
	if len(fdcIDs) > maxBatchSize {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("一括取得は最大%d件までです: %d件が指定されました", maxBatchSize, len(fdcIDs)))
	}
	for _, id := range fdcIDs {
		if id <= 0 {
			return nil, model.NewInvalidRequestError(fmt.Sprintf("fdc_idは正の整数を指定してください: %d", id))
		}
	}
	if err := validateFormat(format); err != nil {
		return nil, err
	}

	body := map[string]any{
		"fdcIds": fdcIDs,
		"format": format,
	}

	var raws []RawFood
	if err := c.doJSON(ctx, "get_batch", http.MethodPost, "/foods", nil, body, &raws); err != nil {
		return nil, c.mapUpstreamError(err, 0)
	}

	// 上流のレスポンス順序に依存せず、入力順に並べ直す
	byID := make(map[int]*model.FoodDetail, len(raws))
	for i := range raws {
		byID[raws[i].FDCID] = c.normalizer.Normalize(&raws[i])
	}

	details := make([]*model.FoodDetail, 0, len(fdcIDs))
	for _, id := range fdcIDs {
		detail, ok := byID[id]
		if !ok {
			return nil, model.NewNotFoundError(id)
		}
		details = append(details, detail)
	}

	c.logger.Info("食品詳細を一括取得しました",
		slog.Int("count", len(details)),
		slog.String("format", format),
	)

	return details, nil
}

// HealthCheck は上流APIへの疎通を確認する。
// ガバナー予約を消費する軽量な検索を1回実行する。
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Search(ctx, SearchRequest{Query: "apple", PageSize: 1, PageNumber: 1})
	return err
}

// validateFormat はformatパラメータを検証する。
func validateFormat(format string) error {
	if format != "abridged" && format != "full" {
		return model.NewInvalidRequestError(fmt.Sprintf("formatはabridgedまたはfullを指定してください: %q", format))
	}
	return nil
}

// reserve はガバナーから1リクエスト分の枠を確保する。
// 拒否された場合、DenialWaitの範囲内でウィンドウリセットを待てるなら待機して
// 再予約し、待てない場合はRATE_LIMITEDを返す。
func (c *Client) reserve(ctx context.Context) error {
	ok, retryAfter := c.governor.Reserve()
	if ok {
		return nil
	}

	c.metrics.RecordGovernorDenial()

	if c.denialWait > 0 && retryAfter <= c.denialWait {
		c.logger.Warn("レート枠の回復を待機します",
			slog.Duration("retry_after", retryAfter),
		)
		if err := sleepContext(ctx, retryAfter); err != nil {
			return err
		}
		if ok, retryAfter = c.governor.Reserve(); ok {
			return nil
		}
	}

	c.logger.Warn("レートガバナーがリクエストを拒否しました",
		slog.Duration("retry_after", retryAfter),
	)
	return model.NewRateLimitedError(int(retryAfter.Seconds()) + 1)
}

// doJSON はガバナー予約とリトライポリシーを適用して上流API呼び出しを実行し、
// レスポンスJSONをoutへデコードする。
func (c *Client) doJSON(ctx context.Context, operation, method, path string, query url.Values, body, out any) error {
	if err := c.reserve(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	attempts := 0
	return c.retryer.Do(ctx, operation, func() error {
		attempts++
		if attempts > 1 {
			c.metrics.RecordRetry(operation)
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("User-Agent", userAgent)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		c.metrics.RecordUpstreamLatency(operation, time.Since(start))
		if err != nil {
			// タイムアウトや接続リセットなどのトランスポート障害はリトライ対象
			c.metrics.RecordUpstreamRequest(operation, 0)
			return markRetryable(fmt.Errorf("上流APIへの接続に失敗しました: %w", err))
		}
		defer resp.Body.Close()

		c.metrics.RecordUpstreamRequest(operation, resp.StatusCode)

		if err := classifyStatus(resp); err != nil {
			return err
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			// 不正なレスポンスボディは致命的（リトライしない）
			return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
		}
		return nil
	})
}

// classifyStatus はHTTPステータスコードをリトライ対象/致命的に分類する。
// 429と5xxはリトライ対象、429以外の4xxは致命的。
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		hint := parseRetryAfter(resp.Header.Get("Retry-After"))
		return markRetryableWithHint(&statusError{code: resp.StatusCode}, hint)
	case resp.StatusCode >= 500:
		return markRetryable(&statusError{code: resp.StatusCode})
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}
}

// parseRetryAfter はRetry-Afterヘッダーの秒数表記をパースする。
// パースできない場合は0を返す（計算済みバックオフを使用する）。
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	sec, err := strconv.Atoi(value)
	if err != nil || sec < 0 {
		return 0
	}
	return time.Duration(sec) * time.Second
}

// mapUpstreamError は内部エラーをエラータクソノミーへ対応付ける。
// 404はNOT_FOUND、その他の上流障害はUPSTREAM_UNAVAILABLEに分類する。
// 既にAPIErrorである場合（RATE_LIMITEDなど）はそのまま返す。
// fdcIDが0の場合（検索・一括取得など特定IDに紐づかない呼び出し）は
// IDを含まないNOT_FOUNDメッセージを使用する。
func (c *Client) mapUpstreamError(err error, fdcID int) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		if fdcID > 0 {
			return model.NewNotFoundError(fdcID)
		}
		return model.NewResourceNotFoundError()
	}

	return model.NewUpstreamUnavailableError(err.Error())
}
