package fdc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/nutrimcp/internal/fdc"
	"github.com/hitoshi/nutrimcp/internal/model"
	"github.com/hitoshi/nutrimcp/internal/nutrient"
	"github.com/hitoshi/nutrimcp/internal/quota"
)

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// newTestClient はテスト用HTTPサーバーに向けたClientを生成する。
func newTestClient(t *testing.T, serverURL string, capacity int) *fdc.Client {
	t.Helper()

	logger := newTestLogger()
	normalizer, err := nutrient.NewNormalizer()
	if err != nil {
		t.Fatalf("NewNormalizerがエラーを返した: %v", err)
	}

	return fdc.NewClient(
		&http.Client{Timeout: 5 * time.Second},
		quota.NewGovernor(capacity),
		fdc.NewRetryer(3, time.Millisecond, logger),
		normalizer,
		fdc.NopMetrics{},
		logger,
		fdc.ClientConfig{APIKey: "test-key", BaseURL: serverURL},
	)
}

func TestClient_Search_MapsProviderFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/foods/search" {
			t.Errorf("パス = %s, want /foods/search", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("X-Api-Key = %s, want test-key", got)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("リクエストボディのデコードに失敗: %v", err)
		}
		if body["query"] != "chicken breast" {
			t.Errorf("query = %v, want chicken breast", body["query"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"totalHits":   312,
			"currentPage": 1,
			"foods": []map[string]any{
				{
					"fdcId":        171077,
					"description":  "Chicken, broiler, breast, raw",
					"dataType":     "SR Legacy",
					"foodCategory": "Poultry Products",
				},
				{
					"fdcId":       2112384,
					"description": "CHICKEN BREAST",
					"dataType":    "Branded",
					"brandOwner":  "Tyson Foods Inc.",
				},
			},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	result, err := c.Search(context.Background(), fdc.SearchRequest{
		Query:      "chicken breast",
		PageSize:   10,
		PageNumber: 1,
	})
	if err != nil {
		t.Fatalf("Searchがエラーを返した: %v", err)
	}

	if result.TotalResults != 312 {
		t.Errorf("TotalResults = %d, want 312", result.TotalResults)
	}
	if len(result.Foods) != 2 {
		t.Fatalf("検索結果数 = %d, want 2", len(result.Foods))
	}
	if result.Foods[0].FDCID != 171077 {
		t.Errorf("Foods[0].FDCID = %d, want 171077", result.Foods[0].FDCID)
	}
	if result.Foods[0].FoodCategory != "Poultry Products" {
		t.Errorf("Foods[0].FoodCategory = %s, want Poultry Products", result.Foods[0].FoodCategory)
	}
	if result.Foods[1].BrandOwner != "Tyson Foods Inc." {
		t.Errorf("Foods[1].BrandOwner = %s, want Tyson Foods Inc.", result.Foods[1].BrandOwner)
	}
}

func TestClient_Search_EmptyQueryFailsWithoutUpstreamCall(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	_, err := c.Search(context.Background(), fdc.SearchRequest{Query: "   ", PageSize: 10, PageNumber: 1})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Fatalf("err = %v, want INVALID_REQUEST", err)
	}
	if called {
		t.Error("空クエリで上流が呼び出された")
	}
}

func TestClient_Search_PageSizeZeroIsInvalid(t *testing.T) {
	c := newTestClient(t, "http://localhost:1", 10)

	_, err := c.Search(context.Background(), fdc.SearchRequest{Query: "apple", PageSize: 0, PageNumber: 1})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Fatalf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestClient_Search_PageSizeClampedToProviderMax(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["pageSize"] != float64(200) {
			t.Errorf("pageSize = %v, want 200（上流上限へ切り詰められるべき）", body["pageSize"])
		}
		json.NewEncoder(w).Encode(map[string]any{"totalHits": 0, "currentPage": 1, "foods": []any{}})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	if _, err := c.Search(context.Background(), fdc.SearchRequest{Query: "apple", PageSize: 201, PageNumber: 1}); err != nil {
		t.Fatalf("Searchがエラーを返した: %v", err)
	}
}

func TestClient_GetDetail_NormalizesFullFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/food/171077" {
			t.Errorf("パス = %s, want /food/171077", r.URL.Path)
		}
		if got := r.URL.Query().Get("format"); got != "full" {
			t.Errorf("format = %s, want full", got)
		}

		// full形式: 栄養素定義がnutrientオブジェクトに入れ子になる
		json.NewEncoder(w).Encode(map[string]any{
			"fdcId":       171077,
			"description": "Chicken, broiler, breast, raw",
			"dataType":    "SR Legacy",
			"foodCategory": map[string]any{
				"description": "Poultry Products",
			},
			"foodNutrients": []map[string]any{
				{
					"nutrient": map[string]any{"id": 1003, "name": "Protein", "unitName": "g"},
					"amount":   23.1,
				},
				{
					"nutrient": map[string]any{"id": 1089, "name": "Iron, Fe", "unitName": "mg"},
					"amount":   0.74,
				},
				{
					// 対応表にないコードは捨てられる
					"nutrient": map[string]any{"id": 9999, "name": "Exotic", "unitName": "g"},
					"amount":   1.0,
				},
			},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	detail, err := c.GetDetail(context.Background(), 171077, "full")
	if err != nil {
		t.Fatalf("GetDetailがエラーを返した: %v", err)
	}

	if detail.FoodCategory != "Poultry Products" {
		t.Errorf("FoodCategory = %s, want Poultry Products（オブジェクト形式から抽出されるべき）", detail.FoodCategory)
	}

	protein, ok := detail.Nutrients[model.BucketMacronutrients]["Protein"]
	if !ok {
		t.Fatal("Proteinがmacronutrientsバケットに存在しない")
	}
	if protein.Amount != 23.1 || protein.Unit != "g" {
		t.Errorf("Protein = %+v, want {23.1 g}", protein)
	}

	if _, ok := detail.Nutrients[model.BucketMinerals]["Iron"]; !ok {
		t.Error("Ironがmineralsバケットに存在しない")
	}

	for bucket, nutrients := range detail.Nutrients {
		for name := range nutrients {
			if name == "Exotic" {
				t.Errorf("未知コードの栄養素がバケット%sに含まれている", bucket)
			}
		}
	}
}

func TestClient_GetDetail_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	_, err := c.GetDetail(context.Background(), 999999999, "abridged")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
}

func TestClient_GetDetail_RetriesOn503ThenSucceeds(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"fdcId":         171077,
			"description":   "Chicken, broiler, breast, raw",
			"dataType":      "SR Legacy",
			"foodNutrients": []any{},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	detail, err := c.GetDetail(context.Background(), 171077, "abridged")
	if err != nil {
		t.Fatalf("GetDetailがエラーを返した: %v", err)
	}
	if calls != 3 {
		t.Errorf("上流呼び出し回数 = %d, want 3", calls)
	}
	if detail.FDCID != 171077 {
		t.Errorf("FDCID = %d, want 171077", detail.FDCID)
	}
}

func TestClient_GetDetail_ExhaustedRetriesIsUpstreamUnavailable(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	_, err := c.GetDetail(context.Background(), 171077, "abridged")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUpstreamUnavailable {
		t.Fatalf("err = %v, want UPSTREAM_UNAVAILABLE", err)
	}
	// 初回 + 3リトライ
	if calls != 4 {
		t.Errorf("上流呼び出し回数 = %d, want 4", calls)
	}
}

func TestClient_GetDetail_MalformedResponseIsFatal(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	_, err := c.GetDetail(context.Background(), 171077, "abridged")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUpstreamUnavailable {
		t.Fatalf("err = %v, want UPSTREAM_UNAVAILABLE", err)
	}
	if calls != 1 {
		t.Errorf("上流呼び出し回数 = %d, want 1（不正レスポンスはリトライしない）", calls)
	}
}

func TestClient_GetBatch_PreservesInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/foods" {
			t.Errorf("パス = %s, want /foods", r.URL.Path)
		}

		// 上流が入力と逆順で返しても入力順に並べ直されることを確認する
		json.NewEncoder(w).Encode([]map[string]any{
			{"fdcId": 222, "description": "Food B", "dataType": "Foundation", "foodNutrients": []any{}},
			{"fdcId": 111, "description": "Food A", "dataType": "Foundation", "foodNutrients": []any{}},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	details, err := c.GetBatch(context.Background(), []int{111, 222}, "abridged")
	if err != nil {
		t.Fatalf("GetBatchがエラーを返した: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("取得件数 = %d, want 2", len(details))
	}
	if details[0].FDCID != 111 || details[1].FDCID != 222 {
		t.Errorf("取得順序 = [%d, %d], want [111, 222]（入力順を保持すべき）", details[0].FDCID, details[1].FDCID)
	}
}

func TestClient_GetBatch_SizeLimits(t *testing.T) {
	c := newTestClient(t, "http://localhost:1", 10)

	tests := []struct {
		name string
		ids  []int
	}{
		{"空リスト", []int{}},
		{"21件", make21IDs()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.GetBatch(context.Background(), tt.ids, "abridged")
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
				t.Errorf("err = %v, want INVALID_REQUEST", err)
			}
		})
	}
}

func make21IDs() []int {
	ids := make([]int, 21)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

func TestClient_GetBatch_ExactlyTwentySucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FDCIDs []int `json:"fdcIds"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		foods := make([]map[string]any, 0, len(body.FDCIDs))
		for _, id := range body.FDCIDs {
			foods = append(foods, map[string]any{
				"fdcId":         id,
				"description":   "Food",
				"dataType":      "Foundation",
				"foodNutrients": []any{},
			})
		}
		json.NewEncoder(w).Encode(foods)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	ids := make([]int, 20)
	for i := range ids {
		ids[i] = i + 1
	}

	details, err := c.GetBatch(context.Background(), ids, "abridged")
	if err != nil {
		t.Fatalf("GetBatchがエラーを返した: %v", err)
	}
	if len(details) != 20 {
		t.Fatalf("取得件数 = %d, want 20", len(details))
	}
	for i, d := range details {
		if d.FDCID != ids[i] {
			t.Errorf("details[%d].FDCID = %d, want %d", i, d.FDCID, ids[i])
		}
	}
}

func TestClient_GovernorDenialFailsFast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"totalHits": 0, "currentPage": 1, "foods": []any{}})
	}))
	defer server.Close()

	// 容量1: 1回目は成功、2回目はガバナーが拒否する
	c := newTestClient(t, server.URL, 1)

	if _, err := c.Search(context.Background(), fdc.SearchRequest{Query: "apple", PageSize: 1, PageNumber: 1}); err != nil {
		t.Fatalf("1回目のSearchがエラーを返した: %v", err)
	}

	_, err := c.Search(context.Background(), fdc.SearchRequest{Query: "apple", PageSize: 1, PageNumber: 1})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRateLimited {
		t.Fatalf("err = %v, want RATE_LIMITED", err)
	}
	if apiErr.RetryAfterSec <= 0 {
		t.Errorf("RetryAfterSec = %d, want 0より大きい値", apiErr.RetryAfterSec)
	}
}

func TestClient_Search_NotFoundOmitsFDCID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	_, err := c.Search(context.Background(), fdc.SearchRequest{
		Query: "apple", PageSize: 1, PageNumber: 1,
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
	// 検索は特定のFDC IDに紐づかないため、メッセージがID 0を指してはならない
	if strings.Contains(apiErr.Message, "0") {
		t.Errorf("メッセージが存在しないID 0を含む: %s", apiErr.Message)
	}
}

func TestClient_GetBatch_NotFoundOmitsFDCID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	_, err := c.GetBatch(context.Background(), []int{123, 456}, "abridged")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotFound {
		t.Fatalf("err = %v, want NOT_FOUND", err)
	}
	if strings.Contains(apiErr.Message, "0") {
		t.Errorf("メッセージが存在しないID 0を含む: %s", apiErr.Message)
	}
}

func TestClient_Search_MissingCurrentPageFallsBackToRequested(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// currentPageを省略したレスポンス
		json.NewEncoder(w).Encode(map[string]any{
			"totalHits": 42,
			"foods": []map[string]any{
				{"fdcId": 1, "description": "Apple, raw", "dataType": "Foundation"},
			},
		})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 10)

	result, err := c.Search(context.Background(), fdc.SearchRequest{
		Query: "apple", PageSize: 10, PageNumber: 3,
	})
	if err != nil {
		t.Fatalf("Searchがエラーを返した: %v", err)
	}
	if result.CurrentPage != 3 {
		t.Errorf("CurrentPage = %d, want 3（リクエストしたページ番号へのフォールバック）", result.CurrentPage)
	}
}
