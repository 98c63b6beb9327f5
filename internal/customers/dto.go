package customers

type CreateCustomerRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Mobile   string `json:"mobile" validate:"required,max=32"`
	Category string `json:"category,omitempty" validate:"omitempty,max=60"`
}

type UpdateCustomerRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Mobile   *string `json:"mobile,omitempty" validate:"omitempty,max=32"`
	Category *string `json:"category,omitempty" validate:"omitempty,max=60"`
	IsActive *bool   `json:"is_active,omitempty"`
}

type ListCustomersRequest struct {
	Search   string
	IsActive *bool
	Limit    int
	Offset   int
}
