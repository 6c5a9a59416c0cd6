package filter

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/marketfeed/internal/model"
)

var (
	conditions = []string{"brand-new", "like-new", "good", "fair", "poor", ""}
	selling    = []string{"rent", "sell", ""}
	prices     = []string{"0", "$0.00", "5", "12.50", "bad", "", "1,200"}
)

// genItems builds a deterministic pseudo-random collection.
func genItems(n int, seed int64) []model.Item {
	r := rand.New(rand.NewSource(seed))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := make([]model.Item, n)
	for i := range items {
		item := model.Item{
			ID:          fmt.Sprintf("item-%04d", r.Intn(100000)*10000+i),
			Price:       prices[r.Intn(len(prices))],
			SellingType: selling[r.Intn(len(selling))],
		}
		// Exercise the legacy age fallback on roughly a third of items.
		if r.Intn(3) == 0 {
			item.Age = conditions[r.Intn(len(conditions))]
		} else {
			item.Condition = conditions[r.Intn(len(conditions))]
		}
		if r.Intn(4) != 0 {
			ts := base.Add(time.Duration(r.Intn(1000)) * time.Hour)
			item.PostedAt = &ts
		}
		items[i] = item
	}
	return items
}

var specs = []model.FilterSpec{
	model.NewFilterSpec(),
	model.NewFilterSpec("brand-new"),
	model.NewFilterSpec("brand-new", "like-new"),
	model.NewFilterSpec("rent"),
	model.NewFilterSpec("free"),
	model.NewFilterSpec("good", "sell", "free"),
	model.NewFilterSpec("fair", "poor", "rent", "sell"),
}

var sorts = []model.SortSpec{
	model.SortDefault, model.SortPriceAsc, model.SortPriceDesc, model.SortNewest, model.SortPopularity,
}

func TestEmptyFilterIsIdentity(t *testing.T) {
	items := genItems(40, 1)
	assert.Equal(t, items, Apply(items, model.NewFilterSpec(), model.SortDefault))

	ex := Executor{IndexThreshold: 10}
	assert.Equal(t, items, ex.Apply(items, model.NewFilterSpec(), model.SortDefault, BuildIndex(items)))
}

func TestApplyIsIdempotent(t *testing.T) {
	items := genItems(120, 2)
	ix := BuildIndex(items)
	ex := Executor{IndexThreshold: 50}

	for _, f := range specs {
		for _, s := range sorts {
			once := ex.Apply(items, f, s, ix)
			twice := ex.Apply(once, f, s, ix)
			assert.Equal(t, once, twice, "filter=%v sort=%s", f.Tags(), s)
		}
	}
}

func TestIndexMatchesScan(t *testing.T) {
	for _, n := range []int{0, 1, 5, 49, 50, 51, 150, 1000} {
		items := genItems(n, int64(n))
		ix := BuildIndex(items)
		for _, f := range specs {
			scanned := model.IDs(Scan(items, f))
			indexed := model.IDs(ByIndex(items, f, ix))
			assert.ElementsMatch(t, scanned, indexed, "n=%d filter=%v", n, f.Tags())
			assert.Equal(t, scanned, indexed, "index path preserves order")
		}
	}
}

func TestFreeMarkerExcludesUnparsable(t *testing.T) {
	items := []model.Item{
		{ID: "a", Price: "$0.00"},
		{ID: "b", Price: "5"},
		{ID: "c", Price: "bad"},
	}
	got := Apply(items, model.NewFilterSpec("free"), model.SortDefault)
	assert.Equal(t, []string{"a"}, model.IDs(got))

	ix := BuildIndex(items)
	assert.Len(t, ix.Prices[PriceFree], 1)
	assert.Len(t, ix.Prices[PricePaid], 2)
}

func TestOrWithinCategoryAndAcross(t *testing.T) {
	items := []model.Item{
		{ID: "1", Condition: "brand-new", SellingType: "sell", Price: "10"},
		{ID: "2", Condition: "like-new", SellingType: "rent", Price: "0"},
		{ID: "3", Condition: "good", SellingType: "sell", Price: "0"},
		{ID: "4", Age: "like-new", SellingType: "sell", Price: "0"},
	}

	got := Apply(items, model.NewFilterSpec("brand-new", "like-new"), model.SortDefault)
	assert.Equal(t, []string{"1", "2", "4"}, model.IDs(got))

	got = Apply(items, model.NewFilterSpec("brand-new", "like-new", "sell"), model.SortDefault)
	assert.Equal(t, []string{"1", "4"}, model.IDs(got))

	got = Apply(items, model.NewFilterSpec("brand-new", "like-new", "sell", "free"), model.SortDefault)
	assert.Equal(t, []string{"4"}, model.IDs(got))
}

func TestExecutorUsesIndexAboveThreshold(t *testing.T) {
	items := genItems(20, 3)
	for i := range items {
		items[i].Condition = "good"
	}
	// Index built from a prefix only: the index path can only return those.
	partial := BuildIndex(items[:5])
	f := model.NewFilterSpec("good")

	below := Executor{IndexThreshold: 50}.Apply(items, f, model.SortDefault, partial)
	assert.Len(t, below, 20, "scan path below threshold")

	above := Executor{IndexThreshold: 10}.Apply(items, f, model.SortDefault, partial)
	assert.Len(t, above, 5, "index path above threshold")
}

func TestSortPrice(t *testing.T) {
	items := []model.Item{
		{ID: "a", Price: "10"},
		{ID: "b", Price: "bad"},
		{ID: "c", Price: "$2.50"},
		{ID: "d", Price: "10.00"},
		{ID: "e", Price: "0"},
	}
	assert.Equal(t, []string{"e", "c", "a", "d", "b"}, model.IDs(Sort(items, model.SortPriceAsc)))
	assert.Equal(t, []string{"a", "d", "c", "e", "b"}, model.IDs(Sort(items, model.SortPriceDesc)))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, model.IDs(items), "input untouched")
}

func TestSortNewestMissingIsOldest(t *testing.T) {
	t1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	items := []model.Item{
		{ID: "none1"},
		{ID: "old", PostedAt: &t1},
		{ID: "none2"},
		{ID: "new", PostedAt: &t2},
		{ID: "old2", PostedAt: &t1},
	}
	assert.Equal(t, []string{"new", "old", "old2", "none1", "none2"}, model.IDs(Sort(items, model.SortNewest)))
}

func TestSortPopularityAndDefault(t *testing.T) {
	items := []model.Item{{ID: "b"}, {ID: "c"}, {ID: "a"}}
	assert.Equal(t, []string{"a", "b", "c"}, model.IDs(Sort(items, model.SortPopularity)))
	assert.Equal(t, []string{"b", "c", "a"}, model.IDs(Sort(items, model.SortDefault)))
}

func TestBuildIndexBuckets(t *testing.T) {
	items := []model.Item{
		{ID: "1", Condition: "Good", Age: "poor", SellingType: "Rent", Price: "0"},
		{ID: "2", Age: "poor", SellingType: "sell", Price: "3"},
	}
	ix := BuildIndex(items)
	require.Equal(t, 2, ix.Len())
	assert.Contains(t, ix.Conditions[model.ConditionGood], "1")
	assert.Contains(t, ix.Conditions[model.ConditionPoor], "2")
	assert.NotContains(t, ix.Conditions[model.ConditionPoor], "1", "condition takes precedence over age")
	assert.Contains(t, ix.SellingTypes[model.SellingRent], "1")
	assert.Contains(t, ix.Prices[PriceFree], "1")
}

func TestEmptyInputs(t *testing.T) {
	got := Apply(nil, model.NewFilterSpec("good"), model.SortNewest)
	require.NotNil(t, got)
	assert.Empty(t, got)
}
