package booking

import "context"

// Get returns a single booking by id.
func (service *Service) Get(ctx context.Context, bookingID BookingID) (Booking, error) {
	return service.store.GetBooking(ctx, bookingID.String())
}

// List returns bookings matching the filter, newest first.
func (service *Service) List(ctx context.Context, filter Filter) ([]Booking, error) {
	return service.store.ListBookings(ctx, filter)
}

// ListForCustomer returns all bookings placed by the customer.
func (service *Service) ListForCustomer(ctx context.Context, customerID CustomerID) ([]Booking, error) {
	return service.store.ListForCustomer(ctx, customerID.String())
}

// ListForDriver returns all bookings assigned to the driver.
func (service *Service) ListForDriver(ctx context.Context, driverID DriverID) ([]Booking, error) {
	return service.store.ListForDriver(ctx, driverID.String())
}
