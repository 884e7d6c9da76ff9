package productsearch

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"shopping-agent/internal/domain"
)

func cents(v int64) *int64 { return &v }

func priceList(ps []domain.Product) []*int64 {
	out := make([]*int64, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.PriceCents)
	}
	return out
}

func TestParsePriceCents(t *testing.T) {
	cases := []struct {
		in   string
		want *int64
	}{
		{"$24.99", cents(2499)},
		{"$1,299.99", cents(129999)},
		{"USD 15", cents(1500)},
		{"$19.999", cents(2000)},
		{"", nil},
		{"Currently unavailable", nil},
		{"1.2.3", nil},
		{"...", nil},
		{"$" + strings.Repeat("9", 30), nil},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ParsePriceCents(tc.in), "input=%q", tc.in)
	}
}

func TestFilterByPrice_NullAlwaysPasses(t *testing.T) {
	products := []domain.Product{
		{Title: "a", PriceCents: nil},
		{Title: "b", PriceCents: cents(500)},
		{Title: "c", PriceCents: cents(1500)},
		{Title: "d", PriceCents: nil},
	}

	out := FilterByPrice(products, cents(1000), nil)
	require.Equal(t, []*int64{nil, cents(1500), nil}, priceList(out))
	require.Equal(t, []string{"a", "c", "d"}, []string{out[0].Title, out[1].Title, out[2].Title})
}

func TestFilterByPrice_Bounds(t *testing.T) {
	products := []domain.Product{
		{PriceCents: cents(999)},
		{PriceCents: cents(1000)},
		{PriceCents: cents(5000)},
		{PriceCents: cents(5001)},
	}
	out := FilterByPrice(products, cents(1000), cents(5000))
	require.Equal(t, []*int64{cents(1000), cents(5000)}, priceList(out))

	require.Len(t, FilterByPrice(products, nil, nil), 4)
	require.Len(t, FilterByPrice(products, nil, cents(999)), 1)
}

func TestMajorToCents(t *testing.T) {
	v := 10.006
	require.Equal(t, cents(1001), MajorToCents(&v))
	require.Nil(t, MajorToCents(nil))

	huge := 1e20
	require.Nil(t, MajorToCents(&huge))
	neg := -1e20
	require.Nil(t, MajorToCents(&neg))
	nan := math.NaN()
	require.Nil(t, MajorToCents(&nan))
}

func TestFilterByPrice_HugeBoundIsUnbounded(t *testing.T) {
	huge := 1e20
	products := []domain.Product{{PriceCents: cents(1500)}, {PriceCents: ParsePriceCents("$" + strings.Repeat("9", 25))}}
	out := FilterByPrice(products, nil, MajorToCents(&huge))
	require.Len(t, out, 2)
	require.Nil(t, out[1].PriceCents)
}

func TestAppendAffiliateTag(t *testing.T) {
	require.Equal(t, "https://www.amazon.com/dp/B01?tag=shop-20", appendAffiliateTag("https://www.amazon.com/dp/B01", "shop-20"))
	require.Equal(t, "https://www.amazon.com/dp/B01?tag=other-20", appendAffiliateTag("https://www.amazon.com/dp/B01?tag=other-20", "shop-20"))
	require.Equal(t, "https://www.amazon.com/dp/B01?psc=1&tag=shop-20", appendAffiliateTag("https://www.amazon.com/dp/B01?psc=1", "shop-20"))
	require.Equal(t, "https://x", appendAffiliateTag("https://x", ""))
	require.Equal(t, "", appendAffiliateTag("", "shop-20"))
}

func TestParseRating(t *testing.T) {
	require.Equal(t, 4.5, *parseRating("4.5"))
	require.Equal(t, 4.2, *parseRating("4,2 out of 5 stars"))
	require.Nil(t, parseRating(""))
	require.Nil(t, parseRating("n/a"))
	require.Nil(t, parseRating("7"))
}

func TestResolveLocale(t *testing.T) {
	require.Equal(t, "amazon.de", ResolveLocale("de-DE").Domain)
	require.Equal(t, "amazon.co.uk", ResolveLocale("en_gb").Domain)
	require.Equal(t, "amazon.com", ResolveLocale("").Domain)
	require.Equal(t, "amazon.com", ResolveLocale("xx-YY").Domain)
}
