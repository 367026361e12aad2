package application

import "html/template"

var orderConfirmationTmpl = template.Must(template.New("order_confirmation").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #667eea;">Thank You for Your Order!</h2>
  <p>Your order has been confirmed and will be processed shortly.</p>
  <div style="background-color: #f3f4f6; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3 style="margin-top: 0;">Order Details</h3>
    <p><strong>Order ID:</strong> {{.OrderID}}</p>
    <p><strong>Total Amount:</strong> ${{.TotalAmount}}</p>
    <p><strong>Status:</strong> completed</p>
  </div>
  <div style="margin: 20px 0;">
    <h3>Items Purchased</h3>
    <ul>
    {{- range .Items}}
      <li>{{.Name}}{{if gt .Quantity 1}} x{{.Quantity}}{{end}} (${{.PriceAtPurchase}})</li>
    {{- end}}
    </ul>
  </div>
  <p style="color: #6b7280; font-size: 14px; margin-top: 30px;">If you have any questions about your order, please contact our support team.</p>
  <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 30px 0;" />
  <p style="color: #9ca3af; font-size: 12px; text-align: center;">&copy; {{.Year}} Vinyl Store. All rights reserved.</p>
</div>
`))

var paymentFailedTmpl = template.Must(template.New("payment_failed").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #ef4444;">Payment Failed</h2>
  <p>Unfortunately, your payment could not be processed.</p>
  <div style="background-color: #fef2f2; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #ef4444;">
    <p><strong>Order ID:</strong> {{.OrderID}}</p>
    {{- if .Reason}}
    <p><strong>Reason:</strong> {{.Reason}}</p>
    {{- end}}
  </div>
  <p>Please try again or contact your payment provider for more information.</p>
  <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 30px 0;" />
  <p style="color: #9ca3af; font-size: 12px; text-align: center;">&copy; {{.Year}} Vinyl Store. All rights reserved.</p>
</div>
`))
