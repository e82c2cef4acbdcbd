package source

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/vendor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_ForURL(t *testing.T) {
	set := NewSet(vendor.DefaultRegistry(), slog.Default())

	a, err := set.ForURL("https://domeggook.com/12345")
	require.NoError(t, err)
	assert.IsType(t, &CatalogA{}, a)

	a, err = set.ForURL("https://smartstore.naver.com/shop/products/1")
	require.NoError(t, err)
	assert.IsType(t, &MarketplaceC{}, a)

	_, err = set.ForURL("https://nowhere.example/1")
	assert.True(t, errors.Is(err, models.ErrUnsupportedSource))
}

func TestMarketplaceC_CollectListSkipsSponsored(t *testing.T) {
	adapter := NewMarketplaceC(descriptor(t, vendor.MarketplaceC), slog.Default())
	doc := staticDoc(t, "https://smartstore.naver.com/shop/category/1", `<html><body><ul class="product_list">
		<li><a class="link" href="/shop/products/1"><strong class="name">Mug</strong></a><span class="price"><em>8,900</em></span><img class="thumb" src="//img.example.com/m.jpg"></li>
		<li><span class="ad_badge">AD</span><a class="link" href="/shop/products/2"><strong class="name">Sponsored</strong></a></li>
		<li><a class="link" href="https://adcr.naver.com/x?y=1"><strong class="name">Redirect ad</strong></a></li>
		<li><a class="link" href="/shop/products/3"><strong class="name">Plate</strong></a></li>
		<li><a class="link" href="/shop/products/1"><strong class="name">Mug</strong></a></li>
	</ul></body></html>`)

	entries, err := adapter.CollectList(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Mug", entries[0].Name)
	assert.Equal(t, "https://smartstore.naver.com/shop/products/1", entries[0].URL)
	require.NotNil(t, entries[0].Price)
	assert.Equal(t, int64(8900), *entries[0].Price)
	assert.Equal(t, "https://img.example.com/m.jpg", entries[0].Thumbnail)

	assert.Equal(t, "Plate", entries[1].Name)
	assert.Nil(t, entries[1].Price)
}

func TestMarketplaceC_ProductCodeFromURL(t *testing.T) {
	adapter := NewMarketplaceC(descriptor(t, vendor.MarketplaceC), slog.Default())
	doc := staticDoc(t, "https://smartstore.naver.com/shop/products/4455", `<html><body>
		<div class="_product_title"><h3>Lamp</h3></div>
		<div class="price"><strong class="sale"><span class="value">21,000</span></strong></div>
	</body></html>`)

	info, err := adapter.ExtractBasicInfo(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "4455", info.ProductCode)
	assert.Equal(t, int64(21000), info.Price)
}

func TestCatalogB_SelfcodeAndTierMinimum(t *testing.T) {
	adapter := NewCatalogB(descriptor(t, vendor.CatalogB), slog.Default())
	doc := staticDoc(t, "https://www.ownerclan.com/V2/product/view.php?selfcode=W77", `<html><body>
		<div class="goods_name"><h2>Towel set</h2></div>
		<table class="qty_price"><tbody><tr><td>5개 이상</td><td>4,200원</td></tr></tbody></table>
	</body></html>`)

	info, err := adapter.ExtractBasicInfo(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "W77", info.ProductCode)
	assert.Equal(t, int64(4200), info.Price)
	assert.Equal(t, 5, info.MinPurchase)
}

func TestGovMarketD_CodeAndBreadcrumb(t *testing.T) {
	adapter := NewGovMarketD(descriptor(t, vendor.GovMarketD), slog.Default())
	doc := staticDoc(t, "https://shop.g2b.go.kr/goods/detail?id=7", `<html><body><table>
		<tr><td class="goods_nm">사무용 의자</td></tr>
		<tr><td class="goods_id">물품식별번호 2401-2345</td></tr>
		<tr><td class="contract_price">85,000원</td></tr>
	</table>
	<div class="cate_path"><span>가구 &gt; 의자 &gt; 사무용의자</span></div>
	<select id="spec_opt"><option value="">규격 선택</option><option value="a">높이조절형</option></select>
	</body></html>`)

	info, err := adapter.ExtractBasicInfo(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "24012345", info.ProductCode)
	assert.Equal(t, int64(85000), info.Price)
	assert.Equal(t, []string{"가구", "의자", "사무용의자"}, info.Categories)
	require.Len(t, info.Options, 1)
	assert.Equal(t, "높이조절형", info.Options[0].Options[0].Name)
}
