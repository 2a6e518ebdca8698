package models

// DashboardStats summarizes the bank for the dashboard view
type DashboardStats struct {
	TotalCustomers    int64                 `json:"total_customers"`
	TotalAccounts     int64                 `json:"total_accounts"`
	AccountTypeCounts map[AccountType]int64 `json:"account_type_counts"`
	TotalOperations   int64                 `json:"total_operations"`
}
