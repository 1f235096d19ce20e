package domain

// ComponentDetails is the confirmation payload of one component type.
// The set of implementations is closed: one per ComponentType.
type ComponentDetails interface {
	ComponentType() ComponentType
	isComponentDetails()
}

type FlightDetails struct {
	FlightNumber string `json:"flight_number"`
	Seat         string `json:"seat"`
	Class        string `json:"class"`
}

type HotelDetails struct {
	RoomNumber string `json:"room_number"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
}

type TicketDetails struct {
	Section string `json:"section"`
	Row     string `json:"row"`
	Seat    string `json:"seat"`
}

type CarDetails struct {
	PickupLocation string `json:"pickup_location"`
	ReturnLocation string `json:"return_location"`
	PickupDate     string `json:"pickup_date"`
	ReturnDate     string `json:"return_date"`
}

type TransportationDetails struct {
	Pickup  string `json:"pickup"`
	Dropoff string `json:"dropoff"`
	ETA     string `json:"eta"`
}

func (FlightDetails) ComponentType() ComponentType         { return ComponentFlight }
func (HotelDetails) ComponentType() ComponentType          { return ComponentHotel }
func (TicketDetails) ComponentType() ComponentType         { return ComponentTicket }
func (CarDetails) ComponentType() ComponentType            { return ComponentCar }
func (TransportationDetails) ComponentType() ComponentType { return ComponentTransportation }

func (FlightDetails) isComponentDetails()         {}
func (HotelDetails) isComponentDetails()          {}
func (TicketDetails) isComponentDetails()         {}
func (CarDetails) isComponentDetails()            {}
func (TransportationDetails) isComponentDetails() {}
