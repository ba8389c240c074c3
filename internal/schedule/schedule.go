// Package schedule defines the normalized class-schedule domain types shared
// by the converter and the HTTP layer.
package schedule

// ClassEntry is one class in a term schedule, after week flattening.
// Day is ISO-style: 1 = Monday .. 7 = Sunday. Weeks is the flattened,
// order-preserving week list; Periods is the 1-based lesson-period selector.
type ClassEntry struct {
	Name     string `json:"name"`
	CourseID string `json:"course_id"`
	ClassID  string `json:"class_id"`

	Day     int   `json:"day"`
	Weeks   []int `json:"week"`
	Periods []int `json:"time"`

	Location string   `json:"location,omitempty"`
	Teachers []string `json:"teacher_name,omitempty"`
	Credit   int      `json:"credit,omitempty"`
	Remark   string   `json:"remark,omitempty"`
}
