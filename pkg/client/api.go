package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a token. Use WithToken to authenticate
// later calls with it.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	req := LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) NearbyHospitals(ctx context.Context, q NearQuery) ([]Hospital, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
	if q.MaxDistance > 0 {
		query.Set("maxDistance", strconv.FormatFloat(q.MaxDistance, 'f', -1, 64))
	}
	var out []Hospital
	if err := c.do(ctx, http.MethodGet, "/hospitals/near", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) BookAppointment(ctx context.Context, req BookAppointmentRequest) (*Appointment, error) {
	var out Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments", nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	var out Appointment
	if err := c.do(ctx, http.MethodGet, "/appointments/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListAppointments(ctx context.Context, opts AppointmentListOptions) ([]Appointment, error) {
	query := url.Values{}
	if opts.Filter != "" {
		query.Set("filter", opts.Filter)
	}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	var out []Appointment
	if err := c.do(ctx, http.MethodGet, "/appointments", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateAppointmentStatus(ctx context.Context, id string, req AppointmentStatusRequest) (*Appointment, error) {
	var out Appointment
	if err := c.do(ctx, http.MethodPatch, "/appointments/"+url.PathEscape(id)+"/status", nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelAppointment(ctx context.Context, id, reason string) (*Appointment, error) {
	var out Appointment
	req := cancelRequest{Reason: reason}
	if err := c.do(ctx, http.MethodDelete, "/appointments/"+url.PathEscape(id), nil, &req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateQueue(ctx context.Context, req CreateQueueRequest) (*Queue, error) {
	return c.queue(ctx, http.MethodPost, "/queues", &req)
}

func (c *Client) GetQueue(ctx context.Context, id string) (*Queue, error) {
	return c.queue(ctx, http.MethodGet, "/queues/"+url.PathEscape(id), nil)
}

func (c *Client) JoinQueue(ctx context.Context, queueID string, req JoinQueueRequest) (*Queue, error) {
	return c.queue(ctx, http.MethodPost, "/queues/"+url.PathEscape(queueID)+"/patients", &req)
}

// UpdateQueueEntry moves an entry to status (in_progress, completed, no_show, ...).
func (c *Client) UpdateQueueEntry(ctx context.Context, queueID, entryID, status string) (*Queue, error) {
	path := "/queues/" + url.PathEscape(queueID) + "/patients/" + url.PathEscape(entryID)
	return c.queue(ctx, http.MethodPut, path, &statusRequest{Status: status})
}

func (c *Client) LeaveQueue(ctx context.Context, queueID, entryID string) (*Queue, error) {
	path := "/queues/" + url.PathEscape(queueID) + "/patients/" + url.PathEscape(entryID)
	return c.queue(ctx, http.MethodDelete, path, nil)
}

func (c *Client) SetQueueStatus(ctx context.Context, queueID, status string) (*Queue, error) {
	return c.queue(ctx, http.MethodPut, "/queues/"+url.PathEscape(queueID)+"/status", &statusRequest{Status: status})
}

func (c *Client) HospitalQueues(ctx context.Context, hospitalID string) ([]Queue, error) {
	var out []Queue
	if err := c.do(ctx, http.MethodGet, "/queues/hospital/"+url.PathEscape(hospitalID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) queue(ctx context.Context, method, path string, in interface{}) (*Queue, error) {
	var out Queue
	if err := c.do(ctx, method, path, nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
