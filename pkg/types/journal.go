package types

import "time"

// User is the durable record behind an authenticated principal. Subject is the
// identity provider's "sub" claim and is unique across users.
type User struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"-"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`
}

// Nutrients holds per-serving nutrition facts. Optional facts are nil when unknown.
type Nutrients struct {
	Fat         float64  `json:"fat"`
	Protein     float64  `json:"protein"`
	Carbs       float64  `json:"carbs"`
	Calories    float64  `json:"calories"`
	Cholesterol *float64 `json:"cholesterol,omitempty"`
	Sodium      *float64 `json:"sodium,omitempty"`
	Fiber       *float64 `json:"fiber,omitempty"`
	Sugar       *float64 `json:"sugar,omitempty"`
	AddedSugar  *float64 `json:"addedSugar,omitempty"`
	VitaminD    *float64 `json:"vitaminD,omitempty"`
	Calcium     *float64 `json:"calcium,omitempty"`
	Iron        *float64 `json:"iron,omitempty"`
	Potassium   *float64 `json:"potassium,omitempty"`
}

type Food struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"-"`
	Name         string    `json:"foodName"`
	MealCategory string    `json:"mealCategory,omitempty"`
	TimeEaten    time.Time `json:"timeEaten"`
	Notes        string    `json:"notes,omitempty"`
	Favorite     bool      `json:"isFavorite"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Nutrients
}

// MealEntry links a food to a meal with a serving size. On create, an entry
// without FoodID describes a new food by name and nutrients.
type MealEntry struct {
	FoodID      int64   `json:"foodId,omitempty"`
	FoodName    string  `json:"foodName,omitempty"`
	ServingSize float64 `json:"servingSize"`
	Notes       string  `json:"notes,omitempty"`
	*Nutrients
}

type Meal struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"-"`
	Name      string      `json:"mealName"`
	TimeEaten time.Time   `json:"timeEaten"`
	Favorite  bool        `json:"isFavorite"`
	Foods     []MealEntry `json:"foods"`
}

type GlucoseReading struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"-"`
	GlucoseLevel    float64   `json:"glucoseLevel"`
	MeasurementTime time.Time `json:"measurementTime"`
	Source          string    `json:"measurementSource"`
	Notes           string    `json:"notes,omitempty"`
}
