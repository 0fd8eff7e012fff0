package categories

import (
	"fmt"

	"github.com/chonlathan-cloud/receipt-ocr-service/internal/models"
)

// Static expense category whitelists per business type. Order is significant:
// the rule-based categorizer walks categories (and keywords within each) in
// this order, and the first match wins.

var coffeeCategories = []models.ExpenseCategory{
	{ID: "C1", Name: "COGS (วัตถุดิบ)",
		Keywords: []string{"เมล็ดกาแฟ", "นม", "ไซรัป", "ผงชง", "น้ำแข็ง", "เบเกอรี่", "ผลไม้", "Topping"}},
	{ID: "C2", Name: "Labor (ค่าแรง)",
		Keywords: []string{"เงินเดือน", "OT"}},
	{ID: "C3", Name: "Rent & Place (สถานที่)",
		Keywords: []string{"ค่าเช่า", "ส่วนกลาง", "ที่จอดรถ"}},
	{ID: "C4", Name: "Utilities (สาธารณูปโภค)",
		Keywords: []string{"ไฟฟ้า", "ประปา", "เน็ต", "โทรศัพท์", "internet", "wifi"}},
	{ID: "C5", Name: "Equip & Maint (อุปกรณ์)",
		Keywords: []string{"ซ่อม", "อะไหล่", "แก้ว", "หลอด", "ทิชชู่"}},
	{ID: "C6", Name: "System & Sales (ระบบ)",
		Keywords: []string{"POS", "GP Delivery", "ค่าธรรมเนียม"}},
	{ID: "C7", Name: "Marketing (การตลาด)",
		Keywords: []string{"Ads", "Influencer", "ออกแบบ", "ส่วนลด", "โปรโมชั่น"}},
	{ID: "C8", Name: "Admin (ทั่วไป)",
		Keywords: []string{"เครื่องเขียน", "ทำความสะอาด", "ภาษี", "บัญชี"}},
	{ID: "C9", Name: "Reserve (สำรองจ่าย)",
		Keywords: []string{"ฉุกเฉิน", "ของเสีย", "หมดอายุ", "เงินหาย"}},
}

var restaurantCategories = []models.ExpenseCategory{
	{ID: "F1", Name: "Main Ingredients (วัตถุดิบหลัก)",
		Keywords: []string{"เนื้อ", "หมู", "ไก่", "ผัก", "ไข่", "ข้าว", "เส้น", "เครื่องปรุง", "กะทิ"}},
	{ID: "F2", Name: "Labor (ค่าแรง)",
		Keywords: []string{"เงินเดือน", "OT"}},
	{ID: "F3", Name: "Fuel (เชื้อเพลิง)",
		Keywords: []string{"แก๊ส", "ถ่าน"}},
	{ID: "F4", Name: "Containers (ภาชนะ)",
		Keywords: []string{"กล่องโฟม", "ถุงแกง", "ช้อนส้อม", "หนังยาง", "ทิชชู่"}},
	{ID: "F5", Name: "Water & Ice (น้ำ)",
		Keywords: []string{"น้ำดื่ม", "น้ำแข็ง", "น้ำอัดลม"}},
	{ID: "F6", Name: "Daily Waste (ของเสีย)",
		Keywords: []string{"อาหารเหลือ", "เน่า", "ตักเกิน", "หก"}},
	{ID: "F7", Name: "Daily Misc (เบ็ดเตล็ด)",
		Keywords: []string{"ค่าเช่ารายวัน", "ที่จอดรถ", "ค่าขยะ", "ทำความสะอาด"}},
}

// ForType returns the ordered category list for a business type. The returned
// slice is shared and read-only; callers must not mutate it.
func ForType(businessType models.BusinessType) ([]models.ExpenseCategory, error) {
	switch businessType {
	case models.BusinessTypeCoffee:
		return coffeeCategories, nil
	case models.BusinessTypeRestaurant:
		return restaurantCategories, nil
	default:
		return nil, fmt.Errorf("no categories for business type %q", businessType)
	}
}

// ValidIDs returns the set of category ids allowed for a business type.
func ValidIDs(businessType models.BusinessType) map[string]struct{} {
	cats, err := ForType(businessType)
	if err != nil {
		return nil
	}
	ids := make(map[string]struct{}, len(cats))
	for _, c := range cats {
		ids[c.ID] = struct{}{}
	}
	return ids
}

// NameFor looks up the display name for a category id, or "" when unknown.
func NameFor(businessType models.BusinessType, id string) string {
	cats, err := ForType(businessType)
	if err != nil {
		return ""
	}
	for _, c := range cats {
		if c.ID == id {
			return c.Name
		}
	}
	return ""
}
