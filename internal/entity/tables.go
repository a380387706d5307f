package entity

import "github.com/sells-group/lending-harvest/internal/model"

// PlatformGroups is the reference platform table. Group order is the scan order.
var PlatformGroups = []Group{
	{Name: "蚂蚁", Kind: model.KindPlatform, Keywords: []string{"花呗", "借呗", "网商银行", "蚂蚁集团", "蚂蚁花呗", "蚂蚁借呗", "网商"}},
	{Name: "腾讯", Kind: model.KindPlatform, Keywords: []string{"微粒贷", "微业贷", "微众银行", "腾讯"}},
	{Name: "字节", Kind: model.KindPlatform, Keywords: []string{"抖音", "今日头条", "字节跳动", "字节"}},
	{Name: "百度", Kind: model.KindPlatform, Keywords: []string{"度小满", "百度金融", "有钱花", "有口令"}},
	{Name: "京东", Kind: model.KindPlatform, Keywords: []string{"京东金条", "京东白条", "京东数科", "京东科技"}},
	{Name: "美团", Kind: model.KindPlatform, Keywords: []string{"美团借钱", "美团生活费", "美团"}},
}

// BankGroups lists partner banks by charter class. The group name doubles
// as the bank type on bank records.
var BankGroups = []Group{
	{Name: "股份制", Kind: model.KindBank, Keywords: []string{
		"招商银行", "兴业银行", "浦发银行", "民生银行", "平安银行", "中信银行",
		"光大银行", "华夏银行", "广发银行", "浙商银行", "渤海银行", "恒丰银行",
	}},
	{Name: "国有", Kind: model.KindBank, Keywords: []string{
		"工商银行", "建设银行", "农业银行", "中国银行", "交通银行", "邮储银行",
	}},
	{Name: "城商行", Kind: model.KindBank, Keywords: []string{
		"北京银行", "上海银行", "江苏银行", "宁波银行", "南京银行", "杭州银行",
	}},
	{Name: "民营银行", Kind: model.KindBank, Keywords: []string{
		"新网银行", "百信银行", "苏宁银行", "亿联银行",
	}},
}
