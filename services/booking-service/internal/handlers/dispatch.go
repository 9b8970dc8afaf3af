package handlers

import (
	"context"

	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/consultdesk/services/booking-service/internal/storage"
)

func requireAdmin(actor model.Actor) error {
	if !actor.Admin {
		return apperr.Forbidden("admin role required")
	}
	return nil
}

func requireManage(actor model.Actor, consultantID int64) error {
	if consultantID <= 0 {
		return apperr.Validation("consultant_id is required")
	}
	if !actor.CanManage(consultantID) {
		return apperr.Forbidden("not allowed to act for consultant %d", consultantID)
	}
	return nil
}

func (h *RPCHandler) dispatch(ctx context.Context, actor model.Actor, req request) (any, error) {
	switch req := req.(type) {
	case *generateScheduleRequest:
		if err := requireManage(actor, req.ConsultantID); err != nil {
			return nil, err
		}
		res, err := h.booking.GenerateSchedule(ctx, availability.PlanRequest{
			ConsultantID:    req.ConsultantID,
			DateFrom:        req.DateFrom,
			DateTo:          req.DateTo,
			WorkStart:       req.WorkStart,
			WorkEnd:         req.WorkEnd,
			SlotDuration:    req.SlotDuration,
			ExcludeWeekends: req.ExcludeWeekends,
		})
		if err != nil {
			return nil, err
		}
		return toGenerate(res), nil

	case *createSlotRequest:
		if err := requireManage(actor, req.ConsultantID); err != nil {
			return nil, err
		}
		slot, err := h.booking.CreateSlot(ctx, booking.CreateSlotRequest{
			ConsultantID: req.ConsultantID,
			Date:         req.Date,
			StartTime:    req.StartTime,
			EndTime:      req.EndTime,
			IsAvailable:  req.IsAvailable,
		})
		if err != nil {
			return nil, err
		}
		return toSlot(slot), nil

	case *updateSlotRequest:
		slot, err := h.booking.UpdateSlot(ctx, actor, req.ScheduleID, storage.SlotPatch{
			Date:        req.Date,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			IsAvailable: req.IsAvailable,
		})
		if err != nil {
			return nil, err
		}
		return toSlot(slot), nil

	case *deleteSlotRequest:
		if err := h.booking.DeleteSlot(ctx, actor, req.ScheduleID); err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": req.ScheduleID}, nil

	case *getScheduleRequest:
		if err := requireManage(actor, req.ConsultantID); err != nil {
			return nil, err
		}
		slots, err := h.booking.ListSlots(ctx, booking.ListSlotsRequest{
			ConsultantID: req.ConsultantID,
			DateFrom:     req.DateFrom,
			DateTo:       req.DateTo,
			Available:    req.IsAvailable,
		})
		if err != nil {
			return nil, err
		}
		return toListings(slots), nil

	case *createAppointmentRequest:
		if err := requireManage(actor, req.ConsultantID); err != nil {
			return nil, err
		}
		appt, err := h.booking.CreateAppointment(ctx, booking.CreateAppointmentRequest{
			ConsultantID:    req.ConsultantID,
			CustomerID:      req.CustomerID,
			Date:            req.Date,
			Time:            req.Time,
			DurationMinutes: req.Duration,
			MeetingURL:      req.MeetingURL,
			Status:          req.Status,
			Description:     req.Description,
		})
		if err != nil {
			return nil, err
		}
		return toAppointment(appt), nil

	case *confirmAppointmentRequest:
		return h.transition(ctx, actor, req.transitionRequest, booking.ActionConfirm)
	case *denyAppointmentRequest:
		return h.transition(ctx, actor, req.transitionRequest, booking.ActionDeny)
	case *cancelAppointmentRequest:
		return h.transition(ctx, actor, req.transitionRequest, booking.ActionCancel)
	case *completeAppointmentRequest:
		return h.transition(ctx, actor, req.transitionRequest, booking.ActionComplete)

	case *listAppointmentsRequest:
		consultantID := req.ConsultantID
		if !actor.Admin {
			if consultantID == 0 {
				consultantID = actor.ConsultantID
			}
			if err := requireManage(actor, consultantID); err != nil {
				return nil, err
			}
		}
		list, err := h.booking.ListAppointments(ctx, storage.AppointmentFilter{
			ConsultantID: consultantID,
			CustomerID:   req.CustomerID,
			Status:       model.Status(req.Status),
			DateFrom:     req.DateFrom,
			DateTo:       req.DateTo,
			Limit:        req.Limit,
		})
		if err != nil {
			return nil, err
		}
		return toAppointments(list), nil

	case *syncAccountsRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		report, err := h.identity.SyncAll(ctx)
		if err != nil {
			return nil, err
		}
		return toSyncReport(report), nil

	case *createAccountRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		res, err := h.identity.CreateAccount(ctx, req.Email, req.ConsultantID, req.SendInvite)
		if err != nil {
			return nil, err
		}
		return accountDTO{
			Outcome:      string(res.Outcome),
			Username:     res.Account.Username,
			Status:       res.Account.Status,
			TempPassword: res.TemporaryPassword,
		}, nil

	case *resetPasswordRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		pw, err := h.identity.ResetPassword(ctx, req.Email)
		if err != nil {
			return nil, err
		}
		return map[string]string{"temp_password": pw}, nil

	case *deleteAccountRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		if err := h.identity.DeleteAccount(ctx, req.Email); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": req.Email}, nil

	case *accountStatusRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		rows, err := h.identity.AccountStatuses(ctx, directory.ListFilter{IncludeDisabled: req.IncludeDisabled, Search: req.Search})
		if err != nil {
			return nil, err
		}
		return toAccountStatuses(rows), nil

	case *createConsultantRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		c, err := h.directory.CreateConsultant(ctx, model.Consultant{
			FullName:    req.FullName,
			Email:       req.Email,
			Phone:       req.Phone,
			Specialties: req.Specialties,
			JoinDate:    req.JoinDate,
		})
		if err != nil {
			return nil, err
		}
		return toConsultant(c), nil

	case *updateConsultantRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		c, err := h.directory.UpdateConsultant(ctx, req.ConsultantID, directory.ConsultantPatch{
			FullName:    req.FullName,
			Email:       req.Email,
			Phone:       req.Phone,
			Specialties: req.Specialties,
			JoinDate:    req.JoinDate,
			Disabled:    req.Disabled,
		})
		if err != nil {
			return nil, err
		}
		return toConsultant(c), nil

	case *deleteConsultantRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		c, err := h.directory.DisableConsultant(ctx, req.ConsultantID)
		if err != nil {
			return nil, err
		}
		return toConsultant(c), nil

	case *listConsultantsRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		list, err := h.directory.ListConsultants(ctx, req.listFilter())
		if err != nil {
			return nil, err
		}
		return toConsultants(list), nil

	case *createCustomerRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		c, err := h.directory.CreateCustomer(ctx, model.Customer{FullName: req.FullName, Email: req.Email, Phone: req.Phone, Notes: req.Notes})
		if err != nil {
			return nil, err
		}
		return toCustomer(c), nil

	case *deleteCustomerRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		if err := h.booking.DeleteCustomer(ctx, req.CustomerID); err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": req.CustomerID}, nil

	case *listCustomersRequest:
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
		list, err := h.directory.ListCustomers(ctx, req.listFilter())
		if err != nil {
			return nil, err
		}
		return toCustomers(list), nil

	default:
		return nil, apperr.New(apperr.KindInternal, "unhandled request %T", req)
	}
}

func (h *RPCHandler) transition(ctx context.Context, actor model.Actor, req transitionRequest, action booking.Action) (any, error) {
	if err := requireManage(actor, req.ConsultantID); err != nil {
		return nil, err
	}
	if req.AppointmentID <= 0 {
		return nil, apperr.Validation("appointment_id is required")
	}
	appt, err := h.booking.Transition(ctx, booking.TransitionRequest{
		ConsultantID:  req.ConsultantID,
		AppointmentID: req.AppointmentID,
		Action:        action,
		Reason:        req.Reason,
	})
	if err != nil {
		return nil, err
	}
	return toAppointment(appt), nil
}

func (r listRequest) listFilter() directory.ListFilter {
	return directory.ListFilter{IncludeDisabled: r.IncludeDisabled, Search: r.Search, Limit: r.Limit}
}
