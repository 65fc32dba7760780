package models

import (
	"context"
	"time"
)

// 预约结果状态
const (
	BookingConfirmed = "confirmed"
	BookingConflict  = "conflict"
)

// AppointmentPreferences 客户表达的预约偏好
type AppointmentPreferences struct {
	Date      string `json:"date,omitempty"`        // today、tomorrow、星期名或 YYYY-MM-DD
	TimeOfDay string `json:"time_of_day,omitempty"` // morning、afternoon、evening
	Urgent    bool   `json:"urgent"`
	Notes     string `json:"notes,omitempty"`
}

// Empty 是否未提取到任何偏好
func (p AppointmentPreferences) Empty() bool {
	return p.Date == "" && p.TimeOfDay == "" && !p.Urgent
}

// HasSlot 是否给出了日期或时段
func (p AppointmentPreferences) HasSlot() bool {
	return p.Date != "" || p.TimeOfDay != ""
}

// Merge 用新一轮的偏好覆盖已记录的偏好
func (p AppointmentPreferences) Merge(next AppointmentPreferences) AppointmentPreferences {
	if next.Date != "" {
		p.Date = next.Date
	}
	if next.TimeOfDay != "" {
		p.TimeOfDay = next.TimeOfDay
	}
	if next.Notes != "" {
		p.Notes = next.Notes
	}
	p.Urgent = p.Urgent || next.Urgent
	return p
}

// Slot 可预约时段
type Slot struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Technician string    `json:"technician,omitempty"`
}

// BookingRequest 预约请求
type BookingRequest struct {
	TenantID    string                 `json:"tenant_id"`
	CallID      string                 `json:"call_id"`
	LeadID      string                 `json:"lead_id"`
	Industry    string                 `json:"industry"`
	Preferences AppointmentPreferences `json:"preferences"`
}

// BookingResult 预约结果
type BookingResult struct {
	Status         string `json:"status"`
	ConfirmationID string `json:"confirmation_id,omitempty"`
	Slot           *Slot  `json:"slot,omitempty"`
	Alternatives   []Slot `json:"alternatives,omitempty"`
}

// Scheduler 预约排期服务
type Scheduler interface {
	// Book 按偏好预约，时段冲突时返回备选时段
	Book(ctx context.Context, req BookingRequest) (*BookingResult, error)
}
