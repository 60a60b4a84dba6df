package core

// Category is an entry of the fixed category list offered by the editor.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Categories is the closed list transactions pick from. Transactions keep a
// copy of name and icon, so editing this list never relabels stored data.
var Categories = []Category{
	{ID: "1", Name: "Grocery", Icon: "🛒"},
	{ID: "2", Name: "Parents", Icon: "🏡"},
	{ID: "3", Name: "Shopping", Icon: "👕"},
	{ID: "4", Name: "House Rent", Icon: "🏠"},
	{ID: "5", Name: "Entertainment", Icon: "🎬"},
	{ID: "6", Name: "Transport", Icon: "🚗"},
	{ID: "7", Name: "Savings", Icon: "💰"},
	{ID: "8", Name: "Given to Friends", Icon: "🧑‍🤝‍🧑"},
	{ID: "9", Name: "Education", Icon: "🎓"},
	{ID: "10", Name: "Petrol", Icon: "⛽"},
	{ID: "11", Name: "Spend myself", Icon: "🧍‍♂️"},
	{ID: "12", Name: "Borrowed from Friends", Icon: "🤝"},
	{ID: "13", Name: "Restaurant", Icon: "🍽️"},
	{ID: "14", Name: "Health", Icon: "🩺"},
	{ID: "15", Name: "Other", Icon: "📦"},
}

// DefaultCategory is preselected by the editor.
func DefaultCategory() Category { return Categories[0] }

// LookupCategory finds a category by name. Unknown or empty names fall back
// to the default, matching the editor which always has a selection.
func LookupCategory(name string) Category {
	for _, c := range Categories {
		if c.Name == name {
			return c
		}
	}
	return DefaultCategory()
}
